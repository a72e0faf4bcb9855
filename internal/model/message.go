package model

// MessageRecord is the immutable unit of work produced by intake.
// Identity is ID: two records with the same ID are the same logical
// message regardless of content differences.
type MessageRecord struct {
	// ID is the stable, externally assigned unique key for the message
	// (the Message-ID header, or "uid-<n>" when the header is absent).
	ID string `json:"id"`

	// Subject is the decoded message subject line.
	Subject string `json:"subject"`

	// Sender is the display name or address of the message author.
	Sender string `json:"sender"`

	// Date is the message date as reported by the mailbox.
	Date string `json:"date"`

	// Body is the plain-text message content.
	Body string `json:"body"`
}

// SummaryResult is the per-message output of the summarization phase.
// One result exists for every input record, even on failure.
type SummaryResult struct {
	// SourceID is the ID of the MessageRecord this result belongs to.
	SourceID string

	// Position is the record's index in the original batch. Downstream
	// composition depends on it being stable across completion order.
	Position int

	// Payload is the summary card produced by the summarizer. Empty
	// unless the outcome is a success.
	Payload string

	// Outcome records how summarization ended for this message.
	Outcome Outcome
}

// OutcomeState discriminates the Outcome variant.
type OutcomeState int

const (
	OutcomeSuccess OutcomeState = iota
	OutcomeFailed
	OutcomeSkipped
)

// String returns the lowercase name of the state.
func (s OutcomeState) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of processing a single message.
// Kind is set only for failed outcomes; Reason only for failed and
// skipped ones.
type Outcome struct {
	State  OutcomeState
	Kind   ErrorKind
	Reason string
}

// Succeeded constructs a success outcome.
func Succeeded() Outcome {
	return Outcome{State: OutcomeSuccess}
}

// Failed constructs a failure outcome with the given classification.
func Failed(kind ErrorKind, reason string) Outcome {
	return Outcome{State: OutcomeFailed, Kind: kind, Reason: reason}
}

// Skipped constructs a skipped outcome with the given reason.
func Skipped(reason string) Outcome {
	return Outcome{State: OutcomeSkipped, Reason: reason}
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome) IsSuccess() bool {
	return o.State == OutcomeSuccess
}
