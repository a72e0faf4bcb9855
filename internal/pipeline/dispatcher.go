package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lanhoang/maildigest/internal/deliver"
	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
)

const (
	// maxDeliveryAttempts bounds the retry loop.
	maxDeliveryAttempts = 3

	// initialBackoff is the delay before the first retry; it doubles
	// on each subsequent attempt.
	initialBackoff = 2 * time.Second
)

// Dispatcher sends the composed digest through the delivery
// collaborator under a bounded retry policy. Only transient failures
// are retried; fatal ones (bad credentials, rejected recipient) fail
// immediately.
type Dispatcher struct {
	delivery deliver.Delivery
	logger   *slog.Logger
	backoff  time.Duration
	attempts int
}

// NewDispatcher creates a dispatcher over the given delivery client.
func NewDispatcher(d deliver.Delivery, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		delivery: d,
		logger:   logger,
		backoff:  initialBackoff,
		attempts: maxDeliveryAttempts,
	}
}

// Dispatch delivers doc to the destination address, retrying transient
// failures with exponential backoff.
func (d *Dispatcher) Dispatch(
	ctx context.Context, doc *render.Document, to string,
) (*deliver.Receipt, error) {
	backoff := d.backoff

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		receipt, err := d.delivery.Deliver(ctx, doc, to)
		if err == nil {
			return receipt, nil
		}
		lastErr = err

		kind := model.ClassifyError(err)
		if kind.Fatal() {
			return nil, fmt.Errorf("delivery failed permanently: %w", err)
		}

		if attempt == d.attempts {
			break
		}

		d.logger.Warn("delivery failed, retrying",
			"attempt", attempt,
			"kind", kind.String(),
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("delivery aborted: %w", ctx.Err())
		}
		backoff *= 2
	}

	return nil, fmt.Errorf(
		"delivery failed after %d attempts: %w", d.attempts, lastErr,
	)
}
