package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanhoang/maildigest/internal/model"
)

// TestRender_CardsInsertedVerbatim keeps card HTML unescaped and in
// the given order.
func TestRender_CardsInsertedVerbatim(t *testing.T) {
	r, err := NewHTMLRenderer("Daily digest")
	require.NoError(t, err)

	doc, err := r.Render([]model.SummaryResult{
		{SourceID: "a", Payload: `<div class="card">first ★★★★★</div>`},
		{SourceID: "b", Payload: `<div class="card">second ★☆☆☆☆</div>`},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "Daily digest", doc.Subject)
	assert.Contains(t, doc.HTML, `<div class="card">first ★★★★★</div>`)
	assert.Contains(t, doc.HTML, `<div class="card">second ★☆☆☆☆</div>`)
	assert.Less(t,
		strings.Index(doc.HTML, "first"),
		strings.Index(doc.HTML, "second"),
	)
	assert.False(t, doc.Incomplete)
	assert.Contains(t, doc.HTML, "All new messages are included")
}

// TestRender_IncompleteFooter notes dropped messages in the footer.
func TestRender_IncompleteFooter(t *testing.T) {
	r, err := NewHTMLRenderer("Daily digest")
	require.NoError(t, err)

	doc, err := r.Render([]model.SummaryResult{
		{SourceID: "a", Payload: "<div>only</div>"},
	}, true)
	require.NoError(t, err)

	assert.True(t, doc.Incomplete)
	assert.Contains(t, doc.HTML, "retried in the next digest")
}

// TestAggregateReport joins message metadata with each card.
func TestAggregateReport(t *testing.T) {
	batch := []model.MessageRecord{
		{ID: "a", Subject: "Hello", Sender: "alice@example.com", Date: "2026-08-01 09:00"},
		{ID: "b", Subject: "World", Sender: "bob@example.com", Date: "2026-08-01 10:00"},
	}
	ordered := []model.SummaryResult{
		{SourceID: "b", Payload: "<div>b-card</div>"},
		{SourceID: "a", Payload: "<div>a-card</div>"},
	}

	report := AggregateReport(ordered, batch)

	assert.Contains(t, report, "### Message 1: World")
	assert.Contains(t, report, "### Message 2: Hello")
	assert.Contains(t, report, "- From: bob@example.com")
	assert.Contains(t, report, "<div>a-card</div>")
}
