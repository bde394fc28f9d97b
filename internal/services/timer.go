package services

import (
	"sync"
	"time"

	"github.com/edupath/attempt-engine/internal/models"
)

// ===== ATTEMPT TIMER =====
//
// Inactive -> Running -> Expired. Remaining time is always derived
// from the server-anchored end instant, never accumulated locally, so
// a suspended process resumes with the correct remainder. The expiry
// callback fires exactly once even if several ticks observe zero.

// TimerPhase is the timer's lifecycle phase.
type TimerPhase int

const (
	TimerInactive TimerPhase = iota
	TimerRunning
	TimerExpired
)

// Display thresholds.
const (
	timerWarningThreshold = 5 * time.Minute
	timerDangerThreshold  = time.Minute
)

// AttemptTimer counts down one attempt. Safe for concurrent use; the
// ticking goroutine and the owning session share it.
type AttemptTimer struct {
	mu       sync.Mutex
	phase    TimerPhase
	startedAt time.Time
	endsAt   time.Time
	duration time.Duration
	fired    bool
	stop     chan struct{}
	stopped  bool

	now      func() time.Time
	onExpire func()
}

// NewAttemptTimer creates an inactive timer. onExpire runs at most
// once, from the tick that first observes zero remaining.
func NewAttemptTimer(onExpire func()) *AttemptTimer {
	return &AttemptTimer{
		now:      time.Now,
		onExpire: onExpire,
	}
}

// Start transitions Inactive -> Running and begins ticking every
// second. A non-positive duration leaves the timer inactive: the
// attempt is untimed. Start is a no-op once running.
func (t *AttemptTimer) Start(startedAt time.Time, duration time.Duration) {
	t.mu.Lock()
	if t.phase != TimerInactive || duration <= 0 {
		t.mu.Unlock()
		return
	}
	t.phase = TimerRunning
	t.startedAt = startedAt
	t.duration = duration
	t.endsAt = startedAt.Add(duration)
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go t.run(stop)

	// The attempt may already be past its end instant (resume after a
	// long interruption); surface that immediately.
	t.Tick()
}

func (t *AttemptTimer) run(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick performs one countdown evaluation. Exported so tests can drive
// the state machine without real time.
func (t *AttemptTimer) Tick() {
	t.mu.Lock()
	if t.phase != TimerRunning {
		t.mu.Unlock()
		return
	}
	remaining := t.endsAt.Sub(t.now())
	if remaining > 0 {
		t.mu.Unlock()
		return
	}
	t.phase = TimerExpired
	fire := !t.fired
	t.fired = true
	callback := t.onExpire
	t.mu.Unlock()

	// Outside the lock: the callback typically stops this timer and
	// submits the attempt.
	if fire && callback != nil {
		callback()
	}
}

// Stop cancels the ticking goroutine. Idempotent; called on teardown
// and immediately before any submit so a late tick can never fire a
// duplicate auto-submit.
func (t *AttemptTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil && !t.stopped {
		close(t.stop)
		t.stopped = true
	}
	if t.phase == TimerRunning {
		// Keep the one-shot guard: a stopped running timer must not
		// expire later.
		t.fired = true
	}
}

// Phase returns the current lifecycle phase.
func (t *AttemptTimer) Phase() TimerPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Remaining returns the time left, clamped to zero. Inactive timers
// report zero.
func (t *AttemptTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == TimerInactive {
		return 0
	}
	remaining := t.endsAt.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// State returns the server-anchored timer state, nil when untimed.
func (t *AttemptTimer) State() *models.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == TimerInactive {
		return nil
	}
	return &models.TimerState{
		DurationSeconds: int(t.duration / time.Second),
		StartedAt:       t.startedAt,
		EndsAt:          t.endsAt,
	}
}

// Snapshot builds the per-tick client view with the warning and danger
// styling thresholds applied.
func (t *AttemptTimer) Snapshot() models.TimerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == TimerInactive {
		return models.TimerSnapshot{}
	}
	remaining := t.endsAt.Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}
	return models.TimerSnapshot{
		Active:           true,
		RemainingSeconds: int(remaining / time.Second),
		Warning:          remaining < timerWarningThreshold,
		Danger:           remaining < timerDangerThreshold,
		Expired:          t.phase == TimerExpired,
	}
}
