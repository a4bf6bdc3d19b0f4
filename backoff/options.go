package backoff

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	// DefaultInitialVisibilityTimeoutSeconds is the delay applied after the
	// first failed delivery when no initial timeout is configured.
	DefaultInitialVisibilityTimeoutSeconds int32 = 100

	// DefaultMultiplier is the factor by which the delay grows with each
	// delivery when no multiplier is configured.
	DefaultMultiplier = 2.0

	// MaxVisibilityTimeoutSeconds is the largest visibility timeout SQS
	// accepts (12 hours). No computed timeout ever exceeds it.
	MaxVisibilityTimeoutSeconds int32 = 43200
)

// RandomSource supplies the random draws used for jitter. IntN returns a
// value in [0, n). [*math/rand/v2.Rand] satisfies it, but is not safe for
// concurrent use; the default source is.
type RandomSource interface {
	IntN(n int) int
}

type runtimeRandom struct{}

func (runtimeRandom) IntN(n int) int {
	return rand.IntN(n) //nolint:gosec // Jitter does not need a cryptographic source
}

// Option is a functional option for configuring a [Calculator].
type Option func(*Options)

// Options holds the resolved configuration for a [Calculator].
type Options struct {
	policy                          Policy
	initialVisibilityTimeoutSeconds int32
	multiplier                      float64
	maxVisibilityTimeoutSeconds     int32
	random                          RandomSource
}

func newOptions() *Options {
	return &Options{
		policy:                          HalfJitter,
		initialVisibilityTimeoutSeconds: DefaultInitialVisibilityTimeoutSeconds,
		multiplier:                      DefaultMultiplier,
		maxVisibilityTimeoutSeconds:     MaxVisibilityTimeoutSeconds,
		random:                          runtimeRandom{},
	}
}

func (o *Options) validate() error {
	if !o.policy.isValid() {
		return fmt.Errorf("unknown backoff policy %d", o.policy)
	}

	if o.initialVisibilityTimeoutSeconds <= 0 {
		return errors.New("initial visibility timeout must be greater than zero")
	}

	if o.multiplier <= 0 || math.IsNaN(o.multiplier) || math.IsInf(o.multiplier, 0) {
		return errors.New("multiplier must be a finite number greater than zero")
	}

	if o.maxVisibilityTimeoutSeconds < 1 || o.maxVisibilityTimeoutSeconds > MaxVisibilityTimeoutSeconds {
		return fmt.Errorf("max visibility timeout must be between 1 and %d seconds", MaxVisibilityTimeoutSeconds)
	}

	if o.random == nil {
		return errors.New("random source cannot be nil")
	}

	return nil
}

// WithPolicy selects how the exponential delay is jittered.
// Default: [HalfJitter].
func WithPolicy(p Policy) Option {
	return func(o *Options) {
		o.policy = p
	}
}

// WithInitialVisibilityTimeout sets the unjittered delay, in seconds, after
// the first delivery. Must be greater than zero.
// Default: [DefaultInitialVisibilityTimeoutSeconds].
func WithInitialVisibilityTimeout(seconds int32) Option {
	return func(o *Options) {
		o.initialVisibilityTimeoutSeconds = seconds
	}
}

// WithMultiplier sets the growth factor applied per delivery. Must be
// greater than zero. Default: [DefaultMultiplier].
func WithMultiplier(m float64) Option {
	return func(o *Options) {
		o.multiplier = m
	}
}

// WithMaxVisibilityTimeout lowers the ceiling applied to the computed delay.
// Must be between 1 and [MaxVisibilityTimeoutSeconds], which is also the
// default.
func WithMaxVisibilityTimeout(seconds int32) Option {
	return func(o *Options) {
		o.maxVisibilityTimeoutSeconds = seconds
	}
}

// WithRandomSource replaces the source of jitter. Intended for tests that
// need reproducible timeouts.
func WithRandomSource(r RandomSource) Option {
	return func(o *Options) {
		o.random = r
	}
}
