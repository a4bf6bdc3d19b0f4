package metrics

import "github.com/prometheus/client_golang/prometheus"

// Batches returns the handled batches counter for testing.
//
//nolint:ireturn // Exposes the underlying counter for testutil
func (c *Collector) Batches() prometheus.Counter {
	return c.batches
}

// BatchMessages returns the batch member counter of one outcome for testing.
//
//nolint:ireturn // Exposes the underlying counter for testutil
func (c *Collector) BatchMessages(outcome string) prometheus.Counter {
	return c.batchMessages.WithLabelValues(outcome)
}

// Unrecoverable returns the unrecoverable counter of one source for testing.
//
//nolint:ireturn // Exposes the underlying counter for testutil
func (c *Collector) Unrecoverable(source string) prometheus.Counter {
	return c.unrecoverable.WithLabelValues(source)
}
