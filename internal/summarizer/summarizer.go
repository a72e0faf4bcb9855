package summarizer

import (
	"context"
	"fmt"

	"github.com/lanhoang/maildigest/internal/model"
)

// Summarizer is the collaborator contract for producing one summary
// card per message. Implementations may fail or hang; callers bound
// every call with a context deadline.
type Summarizer interface {
	// Summarize returns a rendered summary card for the message.
	Summarize(ctx context.Context, rec model.MessageRecord) (string, error)
}

// Error is a classified summarizer failure.
type Error struct {
	Kind       model.ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf(
			"summarizer error (%s, HTTP %d): %s",
			e.Kind, e.StatusCode, e.Message,
		)
	}
	return fmt.Sprintf("summarizer error (%s): %s", e.Kind, e.Message)
}

// ErrorKind implements model.KindedError.
func (e *Error) ErrorKind() model.ErrorKind {
	return e.Kind
}

// classifyStatus maps an HTTP status from the model endpoint onto the
// shared error taxonomy. Unauthorized and payment-required responses
// are credential problems; unknown statuses stay transient so work is
// not silently dropped.
func classifyStatus(status int) model.ErrorKind {
	switch status {
	case 401, 402, 403:
		return model.KindAuth
	case 404:
		return model.KindNotFound
	case 429:
		return model.KindRateLimited
	case 408, 502, 503, 504:
		return model.KindNetworkTimeout
	default:
		return model.KindUnknown
	}
}
