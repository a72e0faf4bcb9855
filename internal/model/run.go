package model

import "time"

// RunStatus is the single terminal status reported for one pipeline run.
type RunStatus string

const (
	// StatusNoWork means intake found nothing new to process.
	StatusNoWork RunStatus = "no_work"

	// StatusSent means the digest was composed and delivered.
	StatusSent RunStatus = "sent"

	// StatusSendFailed means summarization produced results but
	// delivery ultimately failed.
	StatusSendFailed RunStatus = "send_failed"

	// StatusTimeout means the run-wide deadline expired before the
	// batch completed.
	StatusTimeout RunStatus = "timeout"

	// StatusInterrupted means the operator aborted the run.
	StatusInterrupted RunStatus = "interrupted"

	// StatusError means the run failed for any other reason.
	StatusError RunStatus = "error"
)

// PipelineRun carries the mutable state of a single run through the
// pipeline stages. It is created at intake, filled by the scheduler,
// consumed by the composer and dispatcher, and discarded once the
// coordinator commits or rolls back.
type PipelineRun struct {
	// RunID uniquely identifies this run.
	RunID string

	// Batch is the ordered set of records selected by intake.
	Batch []MessageRecord

	// StartedAt is when the run began.
	StartedAt time.Time

	// Deadline bounds the concurrent summarization phase.
	Deadline time.Duration

	// Results holds one SummaryResult per batch item, in batch order.
	Results []SummaryResult
}

// BatchIDs returns the ids of all records in the batch.
func (r *PipelineRun) BatchIDs() []string {
	ids := make([]string, 0, len(r.Batch))
	for _, rec := range r.Batch {
		ids = append(ids, rec.ID)
	}
	return ids
}

// RunReport is the terminal record of a run: exactly one status plus
// observability counts. No partial or ambiguous state is exposed.
type RunReport struct {
	RunID      string
	Status     RunStatus
	BatchCount int
	Succeeded  int
	StartedAt  time.Time
	FinishedAt time.Time

	// Message holds human-readable detail for failed statuses.
	Message string
}
