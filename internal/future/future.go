// Package future implements one-shot completion tokens. A token is resolved or failed
// exactly once, by whatever side produces the result, and awaited by any number of
// waiters.
package future

import (
	"errors"
	"sync"
	"time"
)

var ErrTimeout = errors.New("timed out")

type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func New() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

// Resolve marks the future as succeeded. Only the first of Resolve and Fail takes effect.
func (f *Future) Resolve() {
	f.complete(nil)
}

// Fail marks the future as failed with the passed cause. A nil err is treated as Resolve.
func (f *Future) Fail(err error) {
	f.complete(err)
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel, which is closed as soon as the future is completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is already completed, without blocking.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the failure cause. It's always nil until the future is completed.
func (f *Future) Err() error {
	if !f.IsDone() {
		return nil
	}

	return f.err
}

// Await blocks until the future is completed, or the timeout expires. Non-positive timeout
// only checks the current state. Returns ErrTimeout if not completed in time, otherwise
// the failure cause.
func (f *Future) Await(timeout time.Duration) error {
	if f.IsDone() {
		return f.err
	}

	if timeout <= 0 {
		return ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.err
	case <-timer.C:
		return ErrTimeout
	}
}
