package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/lanhoang/maildigest/internal/model"
)

// Mailbox is the collaborator contract for fetching candidate messages.
// Implementations return records in newest-first order.
type Mailbox interface {
	// Fetch retrieves up to limit messages from the configured folder.
	// When onlyUnread is true, only unseen messages are considered.
	Fetch(ctx context.Context, limit int, onlyUnread bool) ([]model.MessageRecord, error)
}

// Error is a classified mailbox failure.
type Error struct {
	Kind    model.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mailbox error (%s): %s", e.Kind, e.Message)
}

// ErrorKind implements model.KindedError.
func (e *Error) ErrorKind() model.ErrorKind {
	return e.Kind
}

// IsAuthError reports whether err (or any error in its chain) is a
// mailbox authentication failure.
func IsAuthError(err error) bool {
	var mbErr *Error
	return errors.As(err, &mbErr) && mbErr.Kind == model.KindAuth
}
