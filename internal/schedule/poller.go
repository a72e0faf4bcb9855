package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/pipeline"
)

// State represents the poller's current activity.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Status is a snapshot of the poller's last activity.
type Status struct {
	State      State
	LastRun    time.Time
	LastStatus model.RunStatus
	Err        error
}

// Runner executes one digest run. *pipeline.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*model.RunReport, error)
}

// defaultInterval is used when no poll interval is configured.
const defaultInterval = 2 * time.Hour

// Poller runs digests on a fixed interval in the background. Runs never
// overlap; a trigger that arrives while a run is in flight is coalesced
// into the next tick. A fatal credential failure stops the poller
// entirely, since retrying on a timer cannot fix it.
type Poller struct {
	runner   Runner
	opts     pipeline.RunOptions
	interval time.Duration

	reports   chan *model.RunReport
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

// New creates a poller that invokes runner every interval.
func New(runner Runner, opts pipeline.RunOptions, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		runner:    runner,
		opts:      opts,
		interval:  interval,
		reports:   make(chan *model.RunReport, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling loop. The first run happens immediately.
// Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop halts the polling loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// Trigger requests an immediate run. Non-blocking; if a trigger is
// already pending the request is coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Reports returns the channel on which finished run reports are
// delivered. Reports are dropped when the channel is full.
func (p *Poller) Reports() <-chan *model.RunReport {
	return p.reports
}

// Status returns a snapshot of the poller's last activity.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if !p.runOnce(ctx) {
		return
	}

	for {
		select {
		case <-p.stopCh:
			p.setState(StateStopped, nil)
			return
		case <-ctx.Done():
			p.setState(StateStopped, nil)
			return
		case <-ticker.C:
			if !p.runOnce(ctx) {
				return
			}
		case <-p.triggerCh:
			if !p.runOnce(ctx) {
				return
			}
		}
	}
}

// runOnce executes a single digest run and reports the outcome. It
// returns false when polling should stop.
func (p *Poller) runOnce(ctx context.Context) bool {
	p.setState(StateRunning, nil)

	report, err := p.runner.Run(ctx, p.opts)

	p.mu.Lock()
	if report != nil {
		p.status.LastRun = time.Now()
		p.status.LastStatus = report.Status
	}
	p.mu.Unlock()

	keepGoing := true
	switch {
	case ctx.Err() != nil:
		p.setState(StateStopped, nil)
		keepGoing = false
	case err != nil && model.ClassifyError(err).Fatal():
		// Bad credentials will not heal on a timer.
		p.setState(StateStopped, err)
		p.Stop()
		keepGoing = false
	case err != nil:
		p.setState(StateError, err)
	default:
		p.setState(StateIdle, nil)
	}

	// Deliver the report after the state settles so a consumer that
	// reads a report and then checks Status sees the final state.
	if report != nil {
		select {
		case p.reports <- report:
		default:
		}
	}

	return keepGoing
}

func (p *Poller) setState(state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
	p.status.Err = err
}
