package examclient

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ViolationKind identifies which proctoring anomaly fired. A dozen distinct
// browser events collapse into this one type so the escalation policy never
// cares which API produced the signal.
type ViolationKind string

const (
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationTabHidden      ViolationKind = "tab_hidden"
	ViolationWindowBlur     ViolationKind = "window_blur"
	ViolationEscapeKey      ViolationKind = "escape_key"
	ViolationHistoryNav     ViolationKind = "history_nav"
	ViolationSwipeNav       ViolationKind = "swipe_nav"
)

// Violation is the normalized proctoring event fed into the monitor.
type Violation struct {
	Kind ViolationKind `json:"kind"`
	At   time.Time     `json:"at"`
}

// MonitorState is the escalation position.
type MonitorState string

const (
	StateClean      MonitorState = "clean"
	StateWarned     MonitorState = "warned"
	StateTerminated MonitorState = "terminated"
)

const (
	defaultCooldown = 500 * time.Millisecond
	defaultGrace    = 3 * time.Second
)

// Monitor is the proctoring escalation state machine. Every anomaly source
// funnels into Trigger; a cooldown window absorbs the burst of events a
// single physical action produces (a fullscreen exit also blurs the window).
// The first counted violation warns and tries to restore fullscreen; the
// second, regardless of any restoration in between, ends the attempt.
//
// State is owned per Monitor, never package-level, so concurrent attempts
// in tests cannot bleed violations into each other.
type Monitor struct {
	log zerolog.Logger
	now func() time.Time

	cooldown time.Duration
	grace    time.Duration

	onWarn  func(Violation)
	finish  func(ctx context.Context)
	report  func(ctx context.Context) error
	reenter func() error

	mu     sync.Mutex
	state  MonitorState
	count  int
	lastAt time.Time
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// MonitorWithClock overrides the time source. Test use.
func MonitorWithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// MonitorWithLogger sets the logger.
func MonitorWithLogger(log zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.log = log }
}

// MonitorWithWarnHook sets the first-violation callback.
func MonitorWithWarnHook(fn func(Violation)) MonitorOption {
	return func(m *Monitor) { m.onWarn = fn }
}

// MonitorWithCooldown overrides the double-count absorption window.
func MonitorWithCooldown(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.cooldown = d }
}

// MonitorWithGrace overrides the restoration grace window.
func MonitorWithGrace(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.grace = d }
}

// NewMonitor arms a monitor over a controller's attempt. The controller's
// finish carries the ending guard, so a termination racing a manual finish
// still submits exactly once.
func NewMonitor(ctrl *Controller, api API, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		log:      zerolog.Nop(),
		now:      time.Now,
		cooldown: defaultCooldown,
		grace:    defaultGrace,
		state:    StateClean,
		finish: func(ctx context.Context) {
			_, _ = ctrl.finishInternal(ctx, false)
		},
		report: func(ctx context.Context) error {
			return api.ReportViolation(ctx, ctrl.attemptRef())
		},
		reenter: func() error {
			return ctrl.screen.Enter()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Trigger is the single entry point for every violation source. Events
// inside the cooldown window of the previous one are treated as echoes of
// the same physical action and dropped.
func (m *Monitor) Trigger(ctx context.Context, kind ViolationKind) {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return
	}

	now := m.now()
	if !m.lastAt.IsZero() && now.Sub(m.lastAt) < m.cooldown {
		m.mu.Unlock()
		return
	}

	m.count++
	m.lastAt = now
	count := m.count
	if count == 1 {
		m.state = StateWarned
	} else {
		m.state = StateTerminated
	}
	m.mu.Unlock()

	m.log.Warn().Str("kind", string(kind)).Int("count", count).Msg("proctoring violation")

	// Heartbeat for observability only; failures never change escalation.
	if m.report != nil {
		if err := m.report(ctx); err != nil {
			m.log.Debug().Err(err).Msg("violation heartbeat failed")
		}
	}

	if count == 1 {
		if m.onWarn != nil {
			m.onWarn(Violation{Kind: kind, At: now})
		}
		if m.reenter != nil {
			if err := m.reenter(); err == nil {
				m.Restored()
			}
		}
		return
	}

	m.finish(ctx)
}

// Restored returns the monitor to clean after fullscreen comes back within
// the grace window. The violation count stays recorded: a restored first
// violation still means the next one terminates.
func (m *Monitor) Restored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateWarned && m.now().Sub(m.lastAt) <= m.grace {
		m.state = StateClean
	}
}

// Stop disarms the monitor. Called on finish so listeners surviving the
// attempt cannot raise violations against the next one.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminated
}

// State returns the current escalation position.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Count returns the number of counted violations.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
