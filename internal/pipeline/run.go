package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lanhoang/maildigest/internal/archive"
	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
	"github.com/lanhoang/maildigest/internal/state"
)

// Stage identifies where the coordinator currently is in a run.
type Stage int

const (
	StageIdle Stage = iota
	StageIntaking
	StageSummarizing
	StageComposing
	StageDispatching
	StageCommitted
	StageRolledBack
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageIntaking:
		return "intaking"
	case StageSummarizing:
		return "summarizing"
	case StageComposing:
		return "composing"
	case StageDispatching:
		return "dispatching"
	case StageCommitted:
		return "committed"
	case StageRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// RunOptions carries the per-run parameters.
type RunOptions struct {
	// Limit caps the batch size for this run.
	Limit int

	// OnlyUnread restricts intake to unseen messages.
	OnlyUnread bool

	// To is the digest destination address.
	To string
}

// Coordinator sequences one pipeline run through intake,
// summarization, composition, and dispatch, and decides what to
// commit to the ledger. The ledger is only ever touched here, before
// and after the concurrent phase; workers never see it. Nothing is
// committed until delivery has succeeded, so an interrupted or failed
// run leaves the ledger exactly as it was.
type Coordinator struct {
	intake     *Intake
	scheduler  *Scheduler
	composer   *Composer
	dispatcher *Dispatcher
	ledger     state.Ledger
	archive    *archive.Store
	logger     *slog.Logger

	stage Stage
}

// NewCoordinator wires the pipeline stages together. archiveStore may
// be nil to disable run-history bookkeeping.
func NewCoordinator(
	intake *Intake,
	scheduler *Scheduler,
	composer *Composer,
	dispatcher *Dispatcher,
	ledger state.Ledger,
	archiveStore *archive.Store,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		intake:     intake,
		scheduler:  scheduler,
		composer:   composer,
		dispatcher: dispatcher,
		ledger:     ledger,
		archive:    archiveStore,
		logger:     logger,
		stage:      StageIdle,
	}
}

// Stage returns the coordinator's current stage.
func (c *Coordinator) Stage() Stage {
	return c.stage
}

// Run executes one complete pipeline run and always returns a report
// with exactly one terminal status. The returned error mirrors failed
// statuses for callers that want errors; the report is authoritative.
func (c *Coordinator) Run(
	ctx context.Context, opts RunOptions,
) (*model.RunReport, error) {
	run := &model.PipelineRun{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Deadline:  c.scheduler.deadline,
	}

	report, doc, err := c.execute(ctx, run, opts)
	report.RunID = run.RunID
	report.StartedAt = run.StartedAt
	report.FinishedAt = time.Now()

	// The digest row references the run row, so record the run first.
	c.recordRun(*report)
	if doc != nil {
		c.archiveDigest(run, doc)
	}

	c.logger.Info("run finished",
		"run_id", report.RunID,
		"status", string(report.Status),
		"batch", report.BatchCount,
		"succeeded", report.Succeeded,
	)

	return report, err
}

// execute drives the stage transitions for one run. The returned
// document is non-nil only when the digest was delivered.
func (c *Coordinator) execute(
	ctx context.Context, run *model.PipelineRun, opts RunOptions,
) (*model.RunReport, *render.Document, error) {
	c.stage = StageIntaking

	batch, err := c.intake.Select(ctx, opts.Limit, opts.OnlyUnread)
	if err != nil {
		c.stage = StageRolledBack
		return &model.RunReport{
			Status:  model.StatusError,
			Message: err.Error(),
		}, nil, err
	}

	if len(batch) == 0 {
		// Nothing to commit and nothing to roll back.
		c.stage = StageCommitted
		return &model.RunReport{Status: model.StatusNoWork}, nil, nil
	}
	run.Batch = batch

	c.logger.Info("batch selected", "run_id", run.RunID, "count", len(batch))

	c.stage = StageSummarizing
	results, schedErr := c.scheduler.Schedule(ctx, batch)
	run.Results = results

	if errors.Is(schedErr, ErrInterrupted) {
		return c.rollBack(run, model.StatusInterrupted, schedErr.Error()), nil, schedErr
	}

	// Always proceed to composition, even after a timeout or fatal
	// abort: whatever completed successfully is still worth sending.
	c.stage = StageComposing
	doc, successIDs, composeErr := c.compose(run)
	if composeErr != nil {
		status := model.StatusError
		msg := composeErr.Error()
		if errors.Is(composeErr, ErrNothingToCompose) {
			if errors.Is(schedErr, ErrRunTimeout) {
				status = model.StatusTimeout
				msg = schedErr.Error()
			} else if schedErr != nil {
				msg = schedErr.Error()
			}
		}
		return c.rollBack(run, status, msg), nil, composeErr
	}

	c.stage = StageDispatching
	receipt, dispatchErr := c.dispatcher.Dispatch(ctx, doc, opts.To)
	if dispatchErr != nil {
		return c.rollBack(run, model.StatusSendFailed, dispatchErr.Error()), nil, dispatchErr
	}

	// Delivery succeeded: commit exactly the ids that made it into
	// the digest. Failed items stay eligible for the next run.
	report := &model.RunReport{
		Status:     model.StatusSent,
		BatchCount: len(run.Batch),
		Succeeded:  len(successIDs),
	}

	if err := c.ledger.Commit(successIDs); err != nil {
		// The digest is already out; surface the ledger problem
		// without pretending the send failed.
		c.logger.Error("ledger commit failed; next run may resend",
			"run_id", run.RunID, "error", err)
		report.Message = "digest sent but ledger commit failed: " + err.Error()
	}

	c.stage = StageCommitted

	c.logger.Info("digest delivered",
		"run_id", run.RunID,
		"to", receipt.To,
		"succeeded", len(successIDs),
	)

	return report, doc, nil
}

// compose runs the composition stage over the collected results.
func (c *Coordinator) compose(
	run *model.PipelineRun,
) (*render.Document, []string, error) {
	return c.composer.Compose(run.Results)
}

// rollBack finalizes a failed run. No ids were committed before
// dispatch, so this normally changes nothing; removing the batch ids
// also recovers any speculative registrations a crashed earlier run
// may have left behind for these messages.
func (c *Coordinator) rollBack(
	run *model.PipelineRun, status model.RunStatus, msg string,
) *model.RunReport {
	if err := c.ledger.Rollback(run.BatchIDs()); err != nil {
		c.logger.Error("ledger rollback failed",
			"run_id", run.RunID, "error", err)
	}

	c.stage = StageRolledBack
	return &model.RunReport{
		Status:     status,
		BatchCount: len(run.Batch),
		Succeeded:  countSuccesses(run.Results),
		Message:    msg,
	}
}

// recordRun persists the terminal report to the archive, best-effort.
func (c *Coordinator) recordRun(report model.RunReport) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.archive.RecordRun(ctx, report); err != nil {
		c.logger.Warn("recording run failed", "run_id", report.RunID, "error", err)
	}
}

// archiveDigest persists the delivered document, best-effort.
func (c *Coordinator) archiveDigest(run *model.PipelineRun, doc *render.Document) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	successes := make([]model.SummaryResult, 0, len(run.Results))
	for _, res := range run.Results {
		if res.Outcome.IsSuccess() {
			successes = append(successes, res)
		}
	}

	err := c.archive.SaveDigest(ctx, archive.Digest{
		RunID:   run.RunID,
		Subject: doc.Subject,
		HTML:    doc.HTML,
		Report:  render.AggregateReport(successes, run.Batch),
	})
	if err != nil {
		c.logger.Warn("archiving digest failed", "run_id", run.RunID, "error", err)
	}
}

// countSuccesses counts successful results.
func countSuccesses(results []model.SummaryResult) int {
	n := 0
	for _, res := range results {
		if res.Outcome.IsSuccess() {
			n++
		}
	}
	return n
}
