package backoff

import (
	"fmt"
	"math"

	"github.com/slackmgr/sqsrecovery/message"
)

// Calculator maps a delivery count to a visibility timeout. It is immutable
// and safe for concurrent use when its [RandomSource] is.
type Calculator struct {
	opts *Options
}

// New returns a Calculator configured by opts. It returns an error if the
// resulting configuration is invalid, for example a non-positive initial
// timeout or multiplier.
func New(opts ...Option) (*Calculator, error) {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid backoff options: %w", err)
	}

	return &Calculator{opts: options}, nil
}

// Policy returns the jitter policy of the calculator.
func (c *Calculator) Policy() Policy {
	return c.opts.policy
}

// VisibilityTimeout returns the visibility timeout, in seconds, for the given
// delivery attempt. Attempts below 1 are treated as 1. The result is always
// in [0, max visibility timeout].
func (c *Calculator) VisibilityTimeout(attempt int) int32 {
	delay := c.exponentialDelay(attempt)

	var timeout int32

	switch c.opts.policy {
	case FullJitter:
		timeout = c.draw(delay)
	case NoJitter:
		timeout = delay
	default:
		half := delay / 2
		timeout = half + c.draw(half)
	}

	return min(max(timeout, 0), c.opts.maxVisibilityTimeoutSeconds)
}

// ForMessage returns the visibility timeout for msg, based on its approximate
// receive count.
func (c *Calculator) ForMessage(msg *message.Message) int32 {
	return c.VisibilityTimeout(message.ReceiveCount(msg))
}

// exponentialDelay returns initial * multiplier^(attempt-1), truncated to whole
// seconds and clamped to the ceiling before any jitter is applied.
func (c *Calculator) exponentialDelay(attempt int) int32 {
	attempt = max(attempt, 1)
	ceiling := c.opts.maxVisibilityTimeoutSeconds

	delay := float64(c.opts.initialVisibilityTimeoutSeconds) * math.Pow(c.opts.multiplier, float64(attempt-1))

	if math.IsNaN(delay) || delay >= float64(ceiling) {
		return ceiling
	}

	return int32(delay)
}

// draw returns a uniform value in [0, upper]. Values outside that range from
// a misbehaving source are clamped.
func (c *Calculator) draw(upper int32) int32 {
	if upper <= 0 {
		return 0
	}

	v := c.opts.random.IntN(int(upper) + 1)

	return int32(min(max(v, 0), int(upper)))
}
