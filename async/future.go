package async

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by [Future.AwaitWithTimeout] when the future has
	// not settled within the given duration.
	ErrTimeout = errors.New("future did not complete before timeout")

	// ErrPanic wraps a panic raised by a function started with [Go].
	ErrPanic = errors.New("async function panicked")
)

// Future is the result of an asynchronous operation that produces no value.
// It is safe for concurrent use.
type Future struct {
	err  error
	once sync.Once
	done chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete settles the future. Only the first call has an effect.
func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Go runs fn on a new goroutine and returns a future that settles with its
// result. A panic in fn settles the future with an error wrapping [ErrPanic].
func Go(fn func() error) *Future {
	f := newFuture()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.complete(fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()

		f.complete(fn())
	}()

	return f
}

// Completed returns a future that has already settled successfully.
func Completed() *Future {
	f := newFuture()
	f.complete(nil)

	return f
}

// Failed returns a future that has already settled with err.
// A nil err yields a successful future.
func Failed(err error) *Future {
	f := newFuture()
	f.complete(err)

	return f
}

// Done returns a channel that is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles and returns its failure, if any.
func (f *Future) Await() error {
	<-f.done
	return f.err
}

// AwaitWithTimeout is like Await but gives up after timeout, returning
// [ErrTimeout]. The underlying operation keeps running.
func (f *Future) AwaitWithTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.err
	case <-timer.C:
		return ErrTimeout
	}
}

// IsComplete reports whether the future has settled, without blocking.
func (f *Future) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Recover returns a future that settles successfully once f has settled.
// If f failed, onFailure is called with the failure before the returned
// future settles. onFailure may be nil.
func Recover(f *Future, onFailure func(error)) *Future {
	r := newFuture()

	go func() {
		if err := f.Await(); err != nil && onFailure != nil {
			defer func() {
				if p := recover(); p != nil {
					r.complete(fmt.Errorf("%w: %v", ErrPanic, p))
				}
			}()

			onFailure(err)
		}

		r.complete(nil)
	}()

	return r
}

// All returns a future that settles after every input future has settled.
// The result is the join of all input failures, or nil when every input
// succeeded. Nil inputs are ignored.
func All(futures ...*Future) *Future {
	if len(futures) == 0 {
		return Completed()
	}

	all := newFuture()

	go func() {
		var errs []error

		for _, f := range futures {
			if f == nil {
				continue
			}

			if err := f.Await(); err != nil {
				errs = append(errs, err)
			}
		}

		all.complete(errors.Join(errs...))
	}()

	return all
}
