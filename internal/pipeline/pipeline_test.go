package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lanhoang/maildigest/internal/deliver"
	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
)

// stubMailbox serves a fixed candidate list.
type stubMailbox struct {
	records []model.MessageRecord
	err     error
}

func (m *stubMailbox) Fetch(
	_ context.Context, limit int, _ bool,
) ([]model.MessageRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

// stubSummarizer delegates to a per-test function and counts calls.
type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, rec model.MessageRecord) (string, error)
}

func (s *stubSummarizer) Summarize(
	ctx context.Context, rec model.MessageRecord,
) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, rec)
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubRenderer records what it was asked to render and produces a
// minimal document with the card payloads joined in order.
type stubRenderer struct {
	ordered    []model.SummaryResult
	incomplete bool
	err        error
}

func (r *stubRenderer) Render(
	ordered []model.SummaryResult, incomplete bool,
) (*render.Document, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.ordered = ordered
	r.incomplete = incomplete

	payloads := make([]string, 0, len(ordered))
	for _, res := range ordered {
		payloads = append(payloads, res.Payload)
	}
	return &render.Document{
		Subject:    "digest",
		HTML:       strings.Join(payloads, "\n"),
		Incomplete: incomplete,
	}, nil
}

// stubDelivery fails a configurable number of times before succeeding.
type stubDelivery struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (d *stubDelivery) Deliver(
	_ context.Context, doc *render.Document, to string,
) (*deliver.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return nil, d.err
	}
	return &deliver.Receipt{To: to, Subject: doc.Subject}, nil
}

func (d *stubDelivery) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// memLedger is an in-memory Ledger for coordinator tests.
type memLedger struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newMemLedger(ids ...string) *memLedger {
	l := &memLedger{ids: make(map[string]struct{})}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l
}

func (l *memLedger) Load() (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]struct{}, len(l.ids))
	for id := range l.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (l *memLedger) Contains(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok, nil
}

func (l *memLedger) Commit(ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			l.ids[id] = struct{}{}
		}
	}
	return nil
}

func (l *memLedger) Rollback(ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.ids, id)
	}
	return nil
}

func (l *memLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// makeBatch builds n message records with predictable ids.
func makeBatch(n int) []model.MessageRecord {
	batch := make([]model.MessageRecord, n)
	for i := range batch {
		batch[i] = model.MessageRecord{
			ID:      fmt.Sprintf("msg-%d", i),
			Subject: fmt.Sprintf("Subject %d", i),
			Sender:  "sender@example.com",
			Body:    "body",
		}
	}
	return batch
}
