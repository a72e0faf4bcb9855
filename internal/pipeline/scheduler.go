package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/summarizer"
)

// ErrRunTimeout reports that the run-wide deadline expired before the
// whole batch completed.
var ErrRunTimeout = errors.New("summarization deadline exceeded")

// ErrInterrupted reports that the run was aborted by its caller.
var ErrInterrupted = errors.New("run interrupted")

// Progress is an optional observer invoked as summaries complete.
type Progress func(completed, total int)

// Scheduler runs the summarizer over a batch under bounded concurrency
// and a single shared deadline. Workers never touch the ledger; the
// only shared state is the result channel.
type Scheduler struct {
	summarizer     summarizer.Summarizer
	maxConcurrency int
	deadline       time.Duration
	progress       Progress
}

// NewScheduler creates a scheduler. maxConcurrency and deadline are
// clamped to sane minimums.
func NewScheduler(
	s summarizer.Summarizer,
	maxConcurrency int,
	deadline time.Duration,
) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if deadline <= 0 {
		deadline = time.Minute
	}
	return &Scheduler{
		summarizer:     s,
		maxConcurrency: maxConcurrency,
		deadline:       deadline,
	}
}

// SetProgress installs an observer called after every recorded result.
func (s *Scheduler) SetProgress(p Progress) {
	s.progress = p
}

// indexed pairs a worker's outcome with its batch position.
type indexed struct {
	position int
	payload  string
	err      error
}

// Schedule summarizes every record in batch. It always returns one
// SummaryResult per input, in batch order, regardless of worker
// completion order.
//
// The returned error is nil when every item ran to completion
// (individual items may still have failed), ErrRunTimeout when the
// deadline truncated the batch, ErrInterrupted when ctx was cancelled
// by the caller, or the triggering error when a fatal classification
// short-circuited the batch.
func (s *Scheduler) Schedule(
	ctx context.Context, batch []model.MessageRecord,
) ([]model.SummaryResult, error) {
	results := make([]model.SummaryResult, len(batch))
	for i, rec := range batch {
		results[i] = model.SummaryResult{
			SourceID: rec.ID,
			Position: i,
		}
	}
	if len(batch) == 0 {
		return results, nil
	}

	effective := s.maxConcurrency
	if effective > len(batch) {
		effective = len(batch)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	// Buffered so late workers can always send and exit; anything
	// arriving after Schedule returns is discarded with the channel.
	outcomes := make(chan indexed, len(batch))
	sem := make(chan struct{}, effective)

	for i, rec := range batch {
		go func(position int, rec model.MessageRecord) {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }()

			// Re-check after acquiring a slot: a fatal failure or the
			// deadline may have cancelled the run while queued.
			if runCtx.Err() != nil {
				return
			}

			payload, err := s.summarizer.Summarize(runCtx, rec)
			outcomes <- indexed{position: position, payload: payload, err: err}
		}(i, rec)
	}

	recorded := make([]bool, len(batch))
	completed := 0

	for completed < len(batch) {
		select {
		case out := <-outcomes:
			if recorded[out.position] {
				continue
			}
			recorded[out.position] = true
			completed++

			results[out.position].Payload = out.payload
			results[out.position].Outcome = classifyOutcome(out.payload, out.err)

			if s.progress != nil {
				s.progress(completed, len(batch))
			}

			if o := results[out.position].Outcome; o.State == model.OutcomeFailed && o.Kind.Fatal() {
				// Stop dispatching, cancel outstanding workers, and
				// fail every unresolved item. In-flight calls may
				// still finish; their results are discarded.
				cancel()
				failUnrecorded(results, recorded, o.Kind, "cancelled after fatal failure")
				return results, out.err

			}

		case <-runCtx.Done():
			if ctx.Err() != nil {
				failUnrecorded(results, recorded,
					model.KindNetworkTimeout, "run interrupted")
				return results, ErrInterrupted
			}
			failUnrecorded(results, recorded,
				model.KindNetworkTimeout, "run deadline exceeded")
			return results, ErrRunTimeout
		}
	}

	return results, nil
}

// classifyOutcome maps a worker's return values onto an Outcome.
func classifyOutcome(payload string, err error) model.Outcome {
	if err != nil {
		return model.Failed(model.ClassifyError(err), err.Error())
	}
	if payload == "" {
		return model.Failed(model.KindUnknown, "summarizer returned an empty card")
	}
	return model.Succeeded()
}

// failUnrecorded marks every unresolved item as failed with the given
// classification.
func failUnrecorded(
	results []model.SummaryResult,
	recorded []bool,
	kind model.ErrorKind,
	reason string,
) {
	for i := range results {
		if !recorded[i] {
			recorded[i] = true
			results[i].Outcome = model.Failed(kind, reason)
		}
	}
}
