package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/lanhoang/maildigest/internal/model"
)

// Document is the final deliverable produced from a run's summaries.
type Document struct {
	// Subject is the delivery subject line.
	Subject string

	// HTML is the complete digest body.
	HTML string

	// Incomplete notes that some batch items did not make it into
	// the digest.
	Incomplete bool
}

// Renderer is the collaborator contract for turning ordered summary
// cards into a single Document.
type Renderer interface {
	Render(ordered []model.SummaryResult, incomplete bool) (*Document, error)
}

// digestTemplate is the full mobile-friendly digest page. The summary
// cards are model-produced HTML fragments and are inserted verbatim.
const digestTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
      margin: 0;
      padding: 0;
      background-color: #f4f7f6;
    }
    .container {
      max-width: 600px;
      margin: 20px auto;
      background-color: #ffffff;
      border-radius: 12px;
      overflow: hidden;
      box-shadow: 0 4px 15px rgba(0,0,0,0.08);
    }
    .header {
      padding: 24px;
      background-color: #4A90E2;
      text-align: center;
    }
    .header h1 {
      margin: 0;
      font-size: 24px;
      color: #ffffff;
    }
    .summary-list {
      padding: 10px 24px 24px 24px;
    }
    .footer {
      padding: 20px;
      text-align: center;
      font-size: 12px;
      color: #888888;
      background-color: #fafafa;
      border-top: 1px solid #eeeeee;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>{{.Title}}</h1>
    </div>
    <div class="summary-list">
      {{range .Cards}}{{.}}
      {{end}}
    </div>
    <div class="footer">
      {{.Footer}}
    </div>
  </div>
</body>
</html>
`

// HTMLRenderer implements Renderer with the built-in digest template.
type HTMLRenderer struct {
	title   string
	subject string
	tmpl    *template.Template
}

// NewHTMLRenderer creates a renderer. subject becomes the document's
// delivery subject; title heads the rendered page.
func NewHTMLRenderer(subject string) (*HTMLRenderer, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}

	return &HTMLRenderer{
		title:   "Today's Mail Digest",
		subject: subject,
		tmpl:    tmpl,
	}, nil
}

// Render assembles the ordered summary cards into one digest document.
// When incomplete is true the footer notes that some messages were
// left out of this digest.
func (r *HTMLRenderer) Render(
	ordered []model.SummaryResult, incomplete bool,
) (*Document, error) {
	cards := make([]template.HTML, 0, len(ordered))
	for _, res := range ordered {
		cards = append(cards, template.HTML(res.Payload))
	}

	footer := "All new messages are included in this digest."
	if incomplete {
		footer = "Some messages could not be summarized and will be retried in the next digest."
	}

	var sb strings.Builder
	err := r.tmpl.Execute(&sb, struct {
		Title  string
		Cards  []template.HTML
		Footer string
	}{
		Title:  r.title,
		Cards:  cards,
		Footer: footer,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering digest: %w", err)
	}

	return &Document{
		Subject:    r.subject,
		HTML:       sb.String(),
		Incomplete: incomplete,
	}, nil
}

// AggregateReport builds a Markdown overview of the digest, one section
// per summarized message, suitable for archiving alongside the HTML.
func AggregateReport(
	ordered []model.SummaryResult, batch []model.MessageRecord,
) string {
	byID := make(map[string]model.MessageRecord, len(batch))
	for _, rec := range batch {
		byID[rec.ID] = rec
	}

	var sb strings.Builder
	sb.WriteString("## Mail Digest Overview\n\n")

	for i, res := range ordered {
		rec := byID[res.SourceID]
		sb.WriteString(fmt.Sprintf("### Message %d: %s\n", i+1, rec.Subject))
		sb.WriteString(fmt.Sprintf("- From: %s\n", rec.Sender))
		sb.WriteString(fmt.Sprintf("- Date: %s\n", rec.Date))
		sb.WriteString("\n```html\n")
		sb.WriteString(strings.TrimSpace(res.Payload))
		sb.WriteString("\n```\n\n---\n\n")
	}

	return sb.String()
}
