package errorhandler

import "time"

// Option is a functional option for configuring an [ErrorHandler].
type Option func(*Options)

// Options holds the resolved configuration for an [ErrorHandler].
type Options struct {
	recorder        Recorder
	clock           func() time.Time
	outcomeListener func(BatchOutcome)
}

func newOptions() *Options {
	return &Options{
		clock: time.Now,
	}
}

// WithRecorder sets the [Recorder] that receives messages whose retry could
// not be scheduled. Default: none; failures are only logged.
func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.recorder = r
	}
}

// WithClock sets the clock used to timestamp unrecoverable records.
// Default: [time.Now].
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

// WithBatchOutcomeListener sets a function called with the [BatchOutcome] of
// every batch once all of its visibility changes have settled. It runs on the
// goroutine that completes the batch future, before that future settles.
func WithBatchOutcomeListener(fn func(BatchOutcome)) Option {
	return func(o *Options) {
		o.outcomeListener = fn
	}
}
