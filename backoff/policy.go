package backoff

import (
	"fmt"
	"strings"
)

// Policy selects how much of the exponential delay is randomised.
type Policy int

const (
	// HalfJitter fixes half of the delay and draws the other half uniformly.
	HalfJitter Policy = iota
	// FullJitter draws the whole delay uniformly from [0, delay].
	FullJitter
	// NoJitter applies the exponential delay unchanged.
	NoJitter
)

var policyNames = map[Policy]string{
	HalfJitter: "half_jitter",
	FullJitter: "full_jitter",
	NoJitter:   "none",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}

	return fmt.Sprintf("Policy(%d)", int(p))
}

func (p Policy) isValid() bool {
	_, ok := policyNames[p]
	return ok
}

// ParsePolicy returns the policy named s. Accepted names are "half_jitter",
// "full_jitter" and "none" (case-insensitive; "-" may replace "_").
func ParsePolicy(s string) (Policy, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")

	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unknown backoff policy %q", s)
}
