package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/summarizer"
)

type coordinatorFixture struct {
	mailbox    *stubMailbox
	summarizer *stubSummarizer
	renderer   *stubRenderer
	delivery   *stubDelivery
	ledger     *memLedger
	coord      *Coordinator
}

func newCoordinatorFixture(
	t *testing.T, deadline time.Duration,
) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		mailbox: &stubMailbox{},
		summarizer: &stubSummarizer{fn: func(_ context.Context, rec model.MessageRecord) (string, error) {
			return "card for " + rec.ID, nil
		}},
		renderer: &stubRenderer{},
		delivery: &stubDelivery{},
		ledger:   newMemLedger(),
	}

	dispatcher := NewDispatcher(f.delivery, nil)
	dispatcher.backoff = time.Millisecond

	f.coord = NewCoordinator(
		NewIntake(f.mailbox, f.ledger),
		NewScheduler(f.summarizer, 4, deadline),
		NewComposer(f.renderer),
		dispatcher,
		f.ledger,
		nil,
		nil,
	)
	return f
}

func (f *coordinatorFixture) run(t *testing.T) (*model.RunReport, error) {
	t.Helper()
	return f.coord.Run(context.Background(), RunOptions{
		Limit: 10,
		To:    "to@example.com",
	})
}

func TestRunNoWork(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, model.StatusNoWork, report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
}

func TestRunDeliversAndCommits(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(3)

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSent, report.Status)
	assert.Equal(t, 3, report.BatchCount)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, f.delivery.callCount())
	assert.Equal(t, StageCommitted, f.coord.Stage())

	for _, id := range []string{"msg-0", "msg-1", "msg-2"} {
		ok, err := f.ledger.Contains(id)
		require.NoError(t, err)
		assert.True(t, ok, "id %s", id)
	}
}

func TestRunCommitsOnlySuccessfulIDs(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(3)
	f.summarizer.fn = func(_ context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-1" {
			return "", &summarizer.Error{
				Kind: model.KindRateLimited, StatusCode: 429, Message: "slow down",
			}
		}
		return "card for " + rec.ID, nil
	}

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSent, report.Status)
	assert.Equal(t, 2, report.Succeeded)
	assert.True(t, f.renderer.incomplete)

	// The failed id stays out of the ledger and is eligible again.
	ok, _ := f.ledger.Contains("msg-1")
	assert.False(t, ok)
	ok, _ = f.ledger.Contains("msg-0")
	assert.True(t, ok)
	ok, _ = f.ledger.Contains("msg-2")
	assert.True(t, ok)
}

func TestRunSendFailureLeavesLedgerUntouched(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(2)
	f.delivery.failures = 10
	f.delivery.err = assert.AnError

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.StatusSendFailed, report.Status)
	assert.Equal(t, maxDeliveryAttempts, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
	assert.Equal(t, StageRolledBack, f.coord.Stage())
}

func TestRunAllSummariesFailed(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(2)
	f.summarizer.fn = func(_ context.Context, _ model.MessageRecord) (string, error) {
		return "", &summarizer.Error{
			Kind: model.KindUnknown, StatusCode: 500, Message: "boom",
		}
	}

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.StatusError, report.Status)
	assert.Zero(t, report.Succeeded)
	assert.Zero(t, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
}

func TestRunFatalSummarizerFailure(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(4)
	f.summarizer.fn = func(ctx context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-0" {
			return "", &summarizer.Error{
				Kind: model.KindAuth, StatusCode: 401, Message: "invalid key",
			}
		}
		<-ctx.Done()
		return "", ctx.Err()
	}

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.StatusError, report.Status)
	assert.Zero(t, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
}

func TestRunTimeoutWithoutSuccesses(t *testing.T) {
	f := newCoordinatorFixture(t, 30*time.Millisecond)
	f.mailbox.records = makeBatch(2)
	f.summarizer.fn = func(ctx context.Context, _ model.MessageRecord) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.StatusTimeout, report.Status)
	assert.Zero(t, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
}

func TestRunTimeoutWithPartialSuccessStillSends(t *testing.T) {
	f := newCoordinatorFixture(t, 50*time.Millisecond)
	f.mailbox.records = makeBatch(3)
	f.summarizer.fn = func(ctx context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-0" {
			return "fast card", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	}

	report, err := f.run(t)
	require.NoError(t, err)

	// Whatever finished before the deadline still ships.
	assert.Equal(t, model.StatusSent, report.Status)
	assert.Equal(t, 1, report.Succeeded)
	assert.True(t, f.renderer.incomplete)

	ok, _ := f.ledger.Contains("msg-0")
	assert.True(t, ok)
	assert.Equal(t, 1, f.ledger.size())
}

func TestRunInterrupted(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	f.mailbox.records = makeBatch(2)
	f.summarizer.fn = func(ctx context.Context, _ model.MessageRecord) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := f.coord.Run(ctx, RunOptions{Limit: 10, To: "to@example.com"})
	require.ErrorIs(t, err, ErrInterrupted)

	assert.Equal(t, model.StatusInterrupted, report.Status)
	assert.Zero(t, f.delivery.callCount())
	assert.Zero(t, f.ledger.size())
}
