package examclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(clock *fakeClock, api *fakeAPI, ctrl *Controller, opts ...MonitorOption) *Monitor {
	opts = append([]MonitorOption{MonitorWithClock(clock.Now)}, opts...)
	return NewMonitor(ctrl, api, opts...)
}

func TestMonitor_FirstViolation_WarnsAndRecovers(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	screen := &recordingScreen{}
	ctrl := NewController(api, WithClock(clock.Now), WithScreen(screen))

	var warned []Violation
	m := newTestMonitor(clock, api, ctrl, MonitorWithWarnHook(func(v Violation) {
		warned = append(warned, v)
	}))

	m.Trigger(context.Background(), ViolationFullscreenExit)

	// Warning shown, fullscreen re-entered, state restored to clean, but
	// the violation stays counted.
	require.Len(t, warned, 1)
	assert.Equal(t, ViolationFullscreenExit, warned[0].Kind)
	assert.Equal(t, StateClean, m.State())
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 0, api.finishCount(), "first violation never ends the attempt")
	assert.Equal(t, 1, api.violations, "heartbeat reported")
}

func TestMonitor_SecondViolation_ForcesFinish(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	ctrl := NewController(api, WithClock(clock.Now))
	m := newTestMonitor(clock, api, ctrl)

	m.Trigger(context.Background(), ViolationFullscreenExit)
	clock.Advance(10 * time.Second)
	m.Trigger(context.Background(), ViolationTabHidden)

	assert.Equal(t, StateTerminated, m.State())
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 1, api.finishCount(), "second violation submits without user action")
}

func TestMonitor_RecoveryDoesNotResetEscalation(t *testing.T) {
	// A restored first violation still means the next one terminates.
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	ctrl := NewController(api, WithClock(clock.Now))
	m := newTestMonitor(clock, api, ctrl)

	m.Trigger(context.Background(), ViolationFullscreenExit)
	require.Equal(t, StateClean, m.State(), "auto re-fullscreen restored the state")

	clock.Advance(time.Minute)
	m.Trigger(context.Background(), ViolationWindowBlur)

	assert.Equal(t, StateTerminated, m.State())
	assert.Equal(t, 1, api.finishCount())
}

func TestMonitor_CooldownAbsorbsEventBursts(t *testing.T) {
	// One physical fullscreen exit also blurs the window; the echo lands
	// inside the cooldown and must not count as a second violation.
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	ctrl := NewController(api, WithClock(clock.Now))
	m := newTestMonitor(clock, api, ctrl)

	m.Trigger(context.Background(), ViolationFullscreenExit)
	clock.Advance(50 * time.Millisecond)
	m.Trigger(context.Background(), ViolationWindowBlur)

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 0, api.finishCount())

	// Past the cooldown the next event counts.
	clock.Advance(time.Second)
	m.Trigger(context.Background(), ViolationWindowBlur)

	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 1, api.finishCount())
}

func TestMonitor_FailedReentry_StaysWarned(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	screen := &recordingScreen{enterErr: assert.AnError}
	ctrl := NewController(api, WithClock(clock.Now), WithScreen(screen))
	m := newTestMonitor(clock, api, ctrl)

	m.Trigger(context.Background(), ViolationFullscreenExit)

	assert.Equal(t, StateWarned, m.State())
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_RestoredOutsideGraceWindow_Ignored(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	screen := &recordingScreen{enterErr: assert.AnError}
	ctrl := NewController(api, WithClock(clock.Now), WithScreen(screen))
	m := newTestMonitor(clock, api, ctrl, MonitorWithGrace(3*time.Second))

	m.Trigger(context.Background(), ViolationFullscreenExit)
	require.Equal(t, StateWarned, m.State())

	clock.Advance(10 * time.Second)
	m.Restored()

	assert.Equal(t, StateWarned, m.State(), "late restoration does not clear the warning")
}

func TestMonitor_StoppedMonitorIgnoresTriggers(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	ctrl := NewController(api, WithClock(clock.Now))
	m := newTestMonitor(clock, api, ctrl)

	m.Stop()
	m.Trigger(context.Background(), ViolationFullscreenExit)
	clock.Advance(time.Minute)
	m.Trigger(context.Background(), ViolationEscapeKey)

	// Listeners surviving a finished attempt cannot raise violations
	// against the next one.
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, api.finishCount())
	assert.Equal(t, 0, api.violations)
}

func TestMonitor_TerminationRacesManualFinish_SubmitsOnce(t *testing.T) {
	t0 := time.Now()
	clock := newFakeClock(t0)
	api := newFakeAPI(testPaper(t0.Add(time.Hour), 1))
	ctrl := NewController(api, WithClock(clock.Now))
	m := newTestMonitor(clock, api, ctrl)

	// Manual finish lands first; the monitor's forced finish must hit the
	// ending guard instead of submitting again.
	_, err := ctrl.Finish(context.Background())
	require.NoError(t, err)

	m.Trigger(context.Background(), ViolationFullscreenExit)
	clock.Advance(time.Minute)
	m.Trigger(context.Background(), ViolationTabHidden)

	assert.Equal(t, 1, api.finishCount())
}
