// Package backoff computes the visibility timeout applied to a message whose
// processing failed, so that it is redelivered after an exponentially growing
// delay.
//
// The unjittered delay for the n-th delivery of a message is
//
//	delay = min(max, initial * multiplier^(n-1))
//
// and a [Policy] decides how much of it is randomised:
//
//   - [FullJitter] draws uniformly from [0, delay]. It spreads retries the
//     most but may retry almost immediately.
//   - [HalfJitter] keeps delay/2 fixed and draws the other half from
//     [0, delay/2], so a retry never comes before half the delay.
//   - [NoJitter] uses delay as is.
//
// The delivery count is read from the message's approximate receive count
// header (see [github.com/slackmgr/sqsrecovery/message.ReceiveCount]); a
// missing or malformed count is treated as the first delivery.
//
// Randomness comes from a [RandomSource], which tests replace with a
// deterministic implementation:
//
//	calc, err := backoff.New(
//	    backoff.WithPolicy(backoff.FullJitter),
//	    backoff.WithInitialVisibilityTimeout(30),
//	    backoff.WithMultiplier(1.5),
//	)
//	seconds := calc.ForMessage(msg)
//
// Settings can also be read from the environment with [LoadConfig].
package backoff
