package executor

import (
	"context"
	"fmt"
	"time"
)

// Status tags a Result. Callers are expected to switch on it exhaustively
// instead of sniffing the error value.
type Status int

const (
	// StatusOK carries the operation's value.
	StatusOK Status = iota
	// StatusUnavailable means the dependency could not be reached in time:
	// the circuit was open, the call timed out, or the caller's context
	// was cancelled. Value holds the fallback (zero) value so callers can
	// degrade instead of failing the request.
	StatusUnavailable
	// StatusFailed means the dependency was reached and reported an error.
	StatusFailed
)

// Result is the uniform envelope returned by Run. When Status is not
// StatusOK, Value is the zero value of T — the configured fallback.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Ok reports whether the operation succeeded.
func (r Result[T]) Ok() bool {
	return r.Status == StatusOK
}

// Run executes op through the breaker. While the circuit is open the
// operation is not attempted at all. The operation receives a context that
// is cancelled once the breaker's timeout elapses; a slow operation counts
// as a failure even if it later completes, and its late result is discarded.
func Run[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) Result[T] {
	var zero T

	allowed, trial, notify := b.allow()
	runNotify(notify)
	if !allowed {
		return Result[T]{
			Status: StatusUnavailable,
			Err:    fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name),
		}
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.Timeout)

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		v, err := op(opCtx)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			runNotify(b.record(false))
			b.log.WithField("dependency", b.cfg.Name).WithError(out.err).Error("dependency call failed")
			return Result[T]{Status: StatusFailed, Value: zero, Err: out.err}
		}
		runNotify(b.record(true))
		return Result[T]{Status: StatusOK, Value: out.value}
	case <-timer.C:
		runNotify(b.record(false))
		b.log.WithField("dependency", b.cfg.Name).Warn("dependency call timed out")
		return Result[T]{
			Status: StatusUnavailable,
			Err:    fmt.Errorf("%w: %s after %s", ErrOperationTimeout, b.cfg.Name, b.cfg.Timeout),
		}
	case <-ctx.Done():
		// Caller gave up; its result is discarded. An ordinary call is not
		// counted against the window, but an abandoned half-open trial must
		// still settle the breaker or no later call would ever be allowed.
		if trial {
			// A trial that never finishes within the timeout counts as
			// failure and reopens the circuit.
			go func() {
				settle := time.NewTimer(b.cfg.Timeout)
				defer settle.Stop()
				select {
				case out := <-done:
					runNotify(b.record(out.err == nil))
				case <-settle.C:
					runNotify(b.record(false))
				}
			}()
		}
		return Result[T]{Status: StatusUnavailable, Err: ctx.Err()}
	}
}
