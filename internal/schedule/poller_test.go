package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/pipeline"
	"github.com/lanhoang/maildigest/internal/summarizer"
)

type stubRunner struct {
	mu     sync.Mutex
	calls  int
	status model.RunStatus
	err    error
}

func (r *stubRunner) Run(
	_ context.Context, _ pipeline.RunOptions,
) (*model.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return &model.RunReport{
		RunID:  fmt.Sprintf("run-%d", r.calls),
		Status: r.status,
	}, r.err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitForReport(t *testing.T, p *Poller) *model.RunReport {
	t.Helper()
	select {
	case report := <-p.Reports():
		return report
	case <-time.After(2 * time.Second):
		t.Fatal("no report received")
		return nil
	}
}

func TestPollerRunsImmediatelyOnStart(t *testing.T) {
	runner := &stubRunner{status: model.StatusNoWork}
	p := New(runner, pipeline.RunOptions{Limit: 5}, time.Hour)
	defer p.Stop()

	p.Start(context.Background())

	report := waitForReport(t, p)
	assert.Equal(t, model.StatusNoWork, report.Status)
	assert.Equal(t, 1, runner.callCount())
}

func TestPollerTriggerForcesRun(t *testing.T) {
	runner := &stubRunner{status: model.StatusSent}
	p := New(runner, pipeline.RunOptions{}, time.Hour)
	defer p.Stop()

	p.Start(context.Background())
	waitForReport(t, p)

	p.Trigger()
	report := waitForReport(t, p)

	assert.Equal(t, "run-2", report.RunID)
	assert.Equal(t, 2, runner.callCount())
}

func TestPollerStopsOnFatalError(t *testing.T) {
	runner := &stubRunner{
		status: model.StatusError,
		err: &summarizer.Error{
			Kind: model.KindAuth, StatusCode: 401, Message: "invalid key",
		},
	}
	p := New(runner, pipeline.RunOptions{}, time.Hour)

	p.Start(context.Background())
	waitForReport(t, p)

	require.Eventually(t, func() bool {
		return p.Status().State == StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	// A trigger after a fatal stop must not restart anything.
	p.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())
}

func TestPollerTransientErrorKeepsPolling(t *testing.T) {
	runner := &stubRunner{
		status: model.StatusSendFailed,
		err: &summarizer.Error{
			Kind: model.KindNetworkTimeout, Message: "timeout",
		},
	}
	p := New(runner, pipeline.RunOptions{}, time.Hour)
	defer p.Stop()

	p.Start(context.Background())
	waitForReport(t, p)

	require.Eventually(t, func() bool {
		return p.Status().State == StateError
	}, 2*time.Second, 10*time.Millisecond)

	p.Trigger()
	report := waitForReport(t, p)
	assert.Equal(t, "run-2", report.RunID)
}

func TestPollerContextCancellation(t *testing.T) {
	runner := &stubRunner{status: model.StatusNoWork}
	p := New(runner, pipeline.RunOptions{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	waitForReport(t, p)

	cancel()
	require.Eventually(t, func() bool {
		return p.Status().State == StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerStartTwiceIsNoop(t *testing.T) {
	runner := &stubRunner{status: model.StatusNoWork}
	p := New(runner, pipeline.RunOptions{}, time.Hour)
	defer p.Stop()

	p.Start(context.Background())
	p.Start(context.Background())
	waitForReport(t, p)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())
}
