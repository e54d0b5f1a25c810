package examclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAttemptEnding is returned when finish is called while a finish is
// already in flight or has completed.
var ErrAttemptEnding = errors.New("attempt is already ending")

// ErrIndexOutOfRange is returned for a navigation target outside the paper.
var ErrIndexOutOfRange = errors.New("question index out of range")

// Screen abstracts the fullscreen lock. Embedders supply the real one; the
// zero value of NopScreen works for headless use.
type Screen interface {
	Enter() error
	Exit()
}

// NopScreen is a Screen that does nothing.
type NopScreen struct{}

func (NopScreen) Enter() error { return nil }
func (NopScreen) Exit()        {}

// Hooks are optional UI callbacks. All are invoked without the controller
// lock held; nil hooks are skipped.
type Hooks struct {
	// OnTick fires once per second with the clamped seconds remaining.
	OnTick func(secondsLeft int)
	// OnWarning fires on the first proctoring violation.
	OnWarning func(v Violation)
	// OnFinished fires exactly once after finish completes, successfully
	// or not. The result is nil when err is non-nil.
	OnFinished func(result *Result, err error)
}

// Controller is the single source of truth for what the candidate currently
// sees and has chosen. It owns the countdown derived from the server-issued
// deadline and the idempotent ending guard that serializes the three finish
// paths: manual, timer expiry, and proctoring termination.
type Controller struct {
	api    API
	screen Screen
	hooks  Hooks
	log    zerolog.Logger

	// now is swappable in tests.
	now func() time.Time

	mu         sync.Mutex
	attemptID  uuid.UUID
	questions  []Question
	answers    map[uuid.UUID]int
	marked     map[uuid.UUID]bool
	current    int
	endsAt     time.Time
	anchor     time.Time
	ending     bool
	cancelTick context.CancelFunc

	monitor *Monitor
}

// Option customizes a Controller.
type Option func(*Controller)

// WithScreen sets the fullscreen lock implementation.
func WithScreen(s Screen) Option {
	return func(c *Controller) { c.screen = s }
}

// WithHooks sets the UI callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides the time source. Test use.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller over the given API.
func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:     api,
		screen:  NopScreen{},
		log:     zerolog.Nop(),
		now:     time.Now,
		answers: make(map[uuid.UUID]int),
		marked:  make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens an attempt: fetches the paper, anchors per-question timing,
// requests the fullscreen lock, arms the proctoring monitor, and begins the
// one-second countdown.
func (c *Controller) Start(ctx context.Context, examID uuid.UUID) (*Paper, error) {
	paper, err := c.api.StartAttempt(ctx, examID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.attemptID = paper.AttemptID
	c.questions = paper.Questions
	c.answers = make(map[uuid.UUID]int)
	c.marked = make(map[uuid.UUID]bool)
	c.current = 0
	c.endsAt = paper.EndsAtTime()
	c.anchor = c.now()
	c.ending = false

	tickCtx, cancel := context.WithCancel(context.Background())
	c.cancelTick = cancel
	c.mu.Unlock()

	c.monitor = NewMonitor(c, c.api,
		MonitorWithClock(c.now),
		MonitorWithLogger(c.log),
		MonitorWithWarnHook(c.hooks.OnWarning),
	)

	if err := c.screen.Enter(); err != nil {
		c.log.Warn().Err(err).Msg("fullscreen request denied")
	}

	go c.runCountdown(tickCtx)

	return paper, nil
}

// Monitor returns the proctoring monitor armed by Start. Nil before Start.
func (c *Controller) Monitor() *Monitor {
	return c.monitor
}

// runCountdown recomputes seconds remaining every second and triggers
// finish exactly once when the window closes. The ending guard inside
// Finish makes the expiry path safe against a racing manual finish.
func (c *Controller) runCountdown(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			left := c.TimeLeft()
			if c.hooks.OnTick != nil {
				c.hooks.OnTick(left)
			}
			if left <= 0 {
				c.log.Info().Msg("time expired, auto-finishing")
				c.finishInternal(context.Background(), true)
				return
			}
		}
	}
}

// TimeLeft returns the clamped seconds remaining against the server-issued
// deadline.
func (c *Controller) TimeLeft() int {
	c.mu.Lock()
	endsAt := c.endsAt
	c.mu.Unlock()

	left := int(endsAt.Sub(c.now()) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// Pick records the candidate's selection locally first, so the UI never
// waits on the network, then saves it with the dwell time since the last
// anchor reset. The anchor resets after every pick, so reported time spent
// can never exceed real dwell time. Save failures are swallowed: the local
// cache stays authoritative and the next pick or navigation carries the
// latest value.
func (c *Controller) Pick(ctx context.Context, questionID uuid.UUID, value int) {
	c.mu.Lock()
	c.answers[questionID] = value
	elapsed := c.resetAnchorLocked()
	attemptID := c.attemptID
	c.mu.Unlock()

	if err := c.api.SaveAnswer(ctx, attemptID, questionID, value, elapsed); err != nil {
		c.log.Debug().Err(err).Str("question_id", questionID.String()).Msg("answer save failed, keeping local value")
	}
}

// SwitchQuestion flushes the outgoing question's pending answer and dwell
// time, then moves the cursor. The anchor is reset exactly once per flush,
// so elapsed time is neither lost nor double-counted across rapid switches.
func (c *Controller) SwitchQuestion(ctx context.Context, newIndex int) error {
	c.mu.Lock()
	if newIndex < 0 || newIndex >= len(c.questions) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}

	outgoing := c.questions[c.current].ID
	value, hasAnswer := c.answers[outgoing]
	elapsed := c.resetAnchorLocked()
	attemptID := c.attemptID
	c.current = newIndex
	c.mu.Unlock()

	if hasAnswer {
		if err := c.api.SaveAnswer(ctx, attemptID, outgoing, value, elapsed); err != nil {
			c.log.Debug().Err(err).Str("question_id", outgoing.String()).Msg("flush failed, keeping local value")
		}
	}
	return nil
}

// ToggleReview flips the personal review mark for a question. Local only;
// review marks are never sent to the server.
func (c *Controller) ToggleReview(questionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marked[questionID] {
		delete(c.marked, questionID)
	} else {
		c.marked[questionID] = true
	}
}

// IsMarked reports whether a question carries a review mark.
func (c *Controller) IsMarked(questionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marked[questionID]
}

// Answer returns the locally cached selection for a question.
func (c *Controller) Answer(questionID uuid.UUID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.answers[questionID]
	return v, ok
}

// CurrentIndex returns the cursor position.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Finish submits the attempt. The ending guard makes it safe to call from
// the timer, the proctoring monitor, and a manual action concurrently:
// exactly one caller proceeds, the rest get ErrAttemptEnding. The timer and
// fullscreen lock are torn down whether or not the server call succeeds, so
// a failed submit never traps the candidate in a locked session.
func (c *Controller) Finish(ctx context.Context) (*Result, error) {
	return c.finishInternal(ctx, false)
}

func (c *Controller) finishInternal(ctx context.Context, expired bool) (*Result, error) {
	c.mu.Lock()
	if c.ending {
		c.mu.Unlock()
		return nil, ErrAttemptEnding
	}
	c.ending = true

	outgoing := uuid.Nil
	value, hasAnswer := 0, false
	if len(c.questions) > 0 {
		outgoing = c.questions[c.current].ID
		value, hasAnswer = c.answers[outgoing]
	}
	elapsed := c.resetAnchorLocked()
	attemptID := c.attemptID
	cancel := c.cancelTick
	c.mu.Unlock()

	// Flush the question being left. Skipped when the window already
	// closed; the server would reject it anyway.
	if hasAnswer && !expired {
		if err := c.api.SaveAnswer(ctx, attemptID, outgoing, value, elapsed); err != nil {
			c.log.Debug().Err(err).Msg("final flush failed")
		}
	}

	result, err := c.api.Finish(ctx, attemptID)

	// Teardown happens regardless of the finish outcome.
	if cancel != nil {
		cancel()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
	c.screen.Exit()

	if err != nil {
		c.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("finish failed")
	}
	if c.hooks.OnFinished != nil {
		c.hooks.OnFinished(result, err)
	}
	return result, err
}

// attemptRef returns the active attempt id.
func (c *Controller) attemptRef() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptID
}

// resetAnchorLocked returns whole seconds elapsed since the last anchor and
// restarts it. Callers hold c.mu. Clock anomalies yield zero, never a
// negative interval.
func (c *Controller) resetAnchorLocked() int {
	now := c.now()
	elapsed := int(now.Sub(c.anchor) / time.Second)
	c.anchor = now
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
