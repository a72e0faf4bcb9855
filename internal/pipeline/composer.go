package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
)

// ErrNothingToCompose reports that no item in the batch produced a
// usable summary, so there is no digest to deliver. Distinct from a
// rendering failure: the caller must not dispatch an empty digest.
var ErrNothingToCompose = errors.New("no successful summaries to compose")

// Composer orders successful summaries and renders them into a single
// deliverable document.
type Composer struct {
	renderer render.Renderer
}

// NewComposer creates a composer over the given renderer.
func NewComposer(r render.Renderer) *Composer {
	return &Composer{renderer: r}
}

// Compose filters results to successes, orders them by extracted star
// rating (highest first, ties broken by original batch position), and
// renders the document. It returns the ids of the messages that made
// it into the digest; that set, not the whole batch, is what gets
// committed to the ledger.
func (c *Composer) Compose(
	results []model.SummaryResult,
) (*render.Document, []string, error) {
	successes := make([]model.SummaryResult, 0, len(results))
	for _, res := range results {
		if res.Outcome.IsSuccess() {
			successes = append(successes, res)
		}
	}

	if len(successes) == 0 {
		return nil, nil, ErrNothingToCompose
	}

	sort.SliceStable(successes, func(i, j int) bool {
		ri, rj := extractRating(successes[i].Payload), extractRating(successes[j].Payload)
		if ri != rj {
			return ri > rj
		}
		return successes[i].Position < successes[j].Position
	})

	incomplete := len(successes) < len(results)

	doc, err := c.renderer.Render(successes, incomplete)
	if err != nil {
		return nil, nil, fmt.Errorf("rendering digest: %w", err)
	}

	ids := make([]string, 0, len(successes))
	for _, res := range successes {
		ids = append(ids, res.SourceID)
	}

	return doc, ids, nil
}
