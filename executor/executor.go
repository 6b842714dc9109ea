// Package executor wraps calls to external dependencies (the document store
// and the cache) in a per-dependency circuit breaker. Every call runs under a
// timeout, failures feed a rolling error-rate window, and once the window
// trips the breaker fails fast with a fallback result until a trial call
// succeeds again.
package executor

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit open")

// ErrOperationTimeout is returned when the wrapped operation exceeded the
// configured timeout. The late result, if any, is discarded.
var ErrOperationTimeout = errors.New("operation timed out")

// State is the circuit breaker state. Transitions only ever follow
// closed -> open -> half-open -> {closed | open}.
type State int32

const (
	// Closed allows all calls; the rolling window tracks the outcome ratio.
	Closed State = iota
	// Open rejects all calls until the reset timeout elapses.
	Open
	// HalfOpen allows exactly one trial call.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker. The defaults mirror the values the service has
// always run with: a 50% error rate over a 10s window opens the circuit and
// a trial call is allowed 30s later.
type Config struct {
	// Name identifies the wrapped dependency in logs and state-change
	// notifications, e.g. "document-store" or "cache".
	Name string

	// Timeout bounds a single operation. A call that exceeds it counts as
	// a failure even if the operation eventually completes.
	Timeout time.Duration

	// Window is the rolling window over which the success/failure ratio
	// is tracked.
	Window time.Duration

	// ErrorThresholdPct opens the circuit when the failure percentage
	// within the window reaches it, provided at least MinRequests calls
	// were observed.
	ErrorThresholdPct int
	MinRequests       int

	// ResetTimeout is how long the circuit stays open before a trial
	// call is allowed.
	ResetTimeout time.Duration

	Logger logrus.FieldLogger

	// OnStateChange is invoked after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)
}

// Breaker is the process-wide health tracker for one dependency. It is safe
// for concurrent use; construct one per dependency at startup and share it.
type Breaker struct {
	cfg Config
	log logrus.FieldLogger

	mu            sync.Mutex
	state         State
	windowStart   time.Time
	successes     int
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewBreaker creates a closed breaker. Zero config fields fall back to the
// service defaults (2s timeout, 10s window, 50% threshold over at least 5
// calls, 30s reset).
func NewBreaker(cfg Config) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "dependency"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.ErrorThresholdPct <= 0 || cfg.ErrorThresholdPct > 100 {
		cfg.ErrorThresholdPct = 50
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Breaker{
		cfg:         cfg,
		log:         log,
		state:       Closed,
		windowStart: time.Now(),
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the configured dependency name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// allow decides whether the next call may run. trial marks the caller as
// the single half-open probe; a trial caller must always settle the breaker
// through record, even if it stops waiting for the result itself. The
// returned notify func is invoked after the lock is released when a state
// transition happened.
func (b *Breaker) allow() (allowed, trial bool, notify func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, false, nil
		}
		notify := b.transition(HalfOpen)
		b.trialInFlight = true
		return true, true, notify
	case HalfOpen:
		if b.trialInFlight {
			return false, false, nil
		}
		b.trialInFlight = true
		return true, true, nil
	default:
		b.rollWindow(now)
		return true, false, nil
	}
}

// record feeds one outcome into the window and handles trips and trial
// results. Returns a notify func for any transition, to run after unlock.
func (b *Breaker) record(success bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if b.state == HalfOpen {
		b.trialInFlight = false
		if success {
			b.successes, b.failures = 0, 0
			b.windowStart = now
			return b.transition(Closed)
		}
		b.openedAt = now
		return b.transition(Open)
	}

	// A result may arrive after the circuit already opened; it is stale.
	if b.state == Open {
		return nil
	}

	b.rollWindow(now)
	if success {
		b.successes++
		return nil
	}

	b.failures++
	total := b.successes + b.failures
	if total >= b.cfg.MinRequests && b.failures*100/total >= b.cfg.ErrorThresholdPct {
		b.openedAt = now
		return b.transition(Open)
	}
	return nil
}

func (b *Breaker) rollWindow(now time.Time) {
	if now.Sub(b.windowStart) >= b.cfg.Window {
		b.windowStart = now
		b.successes, b.failures = 0, 0
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to

	name, cb := b.cfg.Name, b.cfg.OnStateChange
	entry := b.log.WithFields(logrus.Fields{
		"dependency": name,
		"from":       from.String(),
		"to":         to.String(),
	})

	return func() {
		switch to {
		case Open:
			entry.Warn("circuit opened, failing fast")
		case HalfOpen:
			entry.Info("circuit half-open, allowing trial call")
		case Closed:
			entry.Info("circuit closed")
		}
		if cb != nil {
			cb(name, from, to)
		}
	}
}

func runNotify(fn func()) {
	if fn != nil {
		fn()
	}
}
