package pipeline

import (
	"context"
	"fmt"

	"github.com/lanhoang/maildigest/internal/mailbox"
	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/state"
)

// candidateCap bounds how many messages are fetched from the mailbox
// before ledger filtering, regardless of the batch limit.
const candidateCap = 100

// Intake selects the batch of new messages for one run. It reads the
// ledger but never writes it; registration happens at commit time so
// rollback stays symmetric.
type Intake struct {
	mailbox mailbox.Mailbox
	ledger  state.Ledger
}

// NewIntake creates an intake stage over the given collaborators.
func NewIntake(mb mailbox.Mailbox, ledger state.Ledger) *Intake {
	return &Intake{mailbox: mb, ledger: ledger}
}

// Select fetches a candidate set from the mailbox, drops every message
// already recorded in the ledger, and truncates to limit preserving
// the mailbox's newest-first order. An empty result means there is
// nothing to do; it is not an error.
func (i *Intake) Select(
	ctx context.Context, limit int, onlyUnread bool,
) ([]model.MessageRecord, error) {
	if limit < 1 {
		limit = 1
	}

	// Over-fetch so that already-processed messages at the head of the
	// folder do not starve the batch.
	candidateLimit := limit * 3
	if candidateLimit > candidateCap {
		candidateLimit = candidateCap
	}

	candidates, err := i.mailbox.Fetch(ctx, candidateLimit, onlyUnread)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	processed, err := i.ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	batch := make([]model.MessageRecord, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, rec := range candidates {
		if _, done := processed[rec.ID]; done {
			continue
		}
		// The mailbox can surface the same logical message twice
		// (e.g. a copy in the folder); identity is the id.
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}

		batch = append(batch, rec)
		if len(batch) == limit {
			break
		}
	}

	return batch, nil
}
