package deliver

import (
	"context"
	"fmt"
	"time"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
)

// Receipt records a successful delivery.
type Receipt struct {
	To          string
	Subject     string
	DeliveredAt time.Time
}

// Delivery is the collaborator contract for sending the digest.
type Delivery interface {
	// Deliver sends doc to the destination address.
	Deliver(ctx context.Context, doc *render.Document, to string) (*Receipt, error)
}

// Error is a classified delivery failure.
type Error struct {
	Kind    model.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("delivery error (%s): %s", e.Kind, e.Message)
}

// ErrorKind implements model.KindedError.
func (e *Error) ErrorKind() model.ErrorKind {
	return e.Kind
}
