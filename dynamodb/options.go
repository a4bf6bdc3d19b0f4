package dynamodb

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Client].
type Option func(*Options)

// Options holds the configuration for a [Client].
type Options struct {
	timeToLive  time.Duration
	dynamoDBAPI API
	clock       func() time.Time
}

func newOptions() *Options {
	return &Options{
		timeToLive: 14 * 24 * time.Hour,
		clock:      time.Now,
	}
}

func (o *Options) validate() error {
	if o.timeToLive <= 0 {
		return errors.New("time to live must be greater than zero")
	}

	if o.clock == nil {
		return errors.New("clock cannot be nil")
	}

	return nil
}

// WithTimeToLive sets how long unrecoverable-message records are kept before
// DynamoDB expires them. The default is 14 days.
func WithTimeToLive(d time.Duration) Option {
	return func(o *Options) {
		o.timeToLive = d
	}
}

// WithAPI sets a custom [API] implementation, for a custom DynamoDB
// configuration or for injecting mocks in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.dynamoDBAPI = api
	}
}

// WithClock sets the clock used when computing TTL values. Defaults to
// [time.Now].
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.clock = clock
	}
}
