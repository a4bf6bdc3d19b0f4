// Package metrics exports error handler activity as Prometheus counters.
//
// A [Collector] is wired into an error handler twice: as its recorder, to
// count unrecoverable messages per source queue, and as its batch outcome
// listener, to count recovered and unrecovered batch members.
//
//	collector, err := metrics.New(prometheus.DefaultRegisterer, metrics.WithNext(store))
//	handler := errorhandler.NewExponentialBackoff(logger, calc,
//	    errorhandler.WithRecorder(collector),
//	    errorhandler.WithBatchOutcomeListener(collector.ObserveBatch),
//	)
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slackmgr/sqsrecovery/errorhandler"
)

const (
	OutcomeRecovered   = "recovered"
	OutcomeUnrecovered = "unrecovered"
)

var _ errorhandler.Recorder = (*Collector)(nil)

// Option is a functional option for configuring a [Collector].
type Option func(*options)

type options struct {
	namespace string
	next      errorhandler.Recorder
}

// WithNamespace sets the metric namespace. Default: "sqs_recovery".
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// WithNext sets a recorder that receives every record after it is counted,
// typically a database-backed store.
func WithNext(next errorhandler.Recorder) Option {
	return func(o *options) { o.next = next }
}

// Collector counts error handler outcomes.
type Collector struct {
	unrecoverable *prometheus.CounterVec
	batches       prometheus.Counter
	batchMessages *prometheus.CounterVec
	next          errorhandler.Recorder
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	if reg == nil {
		return nil, errors.New("registerer cannot be nil")
	}

	o := &options{namespace: "sqs_recovery"}
	for _, opt := range opts {
		opt(o)
	}

	c := &Collector{
		unrecoverable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "unrecoverable_messages_total",
			Help:      "Messages whose redelivery could not be scheduled, by source queue.",
		}, []string{"source"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "handled_batches_total",
			Help:      "Failed batches passed to the error handler.",
		}),
		batchMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "handled_batch_messages_total",
			Help:      "Members of failed batches, by recovery outcome.",
		}, []string{"outcome"}),
		next: o.next,
	}

	for _, collector := range []prometheus.Collector{c.unrecoverable, c.batches, c.batchMessages} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RecordUnrecoverable counts the record and forwards it to the next recorder,
// if one is set.
func (c *Collector) RecordUnrecoverable(ctx context.Context, record *errorhandler.UnrecoverableRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	c.unrecoverable.WithLabelValues(record.Source).Inc()

	if c.next == nil {
		return nil
	}

	return c.next.RecordUnrecoverable(ctx, record)
}

// ObserveBatch counts the members of a handled batch by outcome.
func (c *Collector) ObserveBatch(outcome errorhandler.BatchOutcome) {
	c.batches.Inc()
	c.batchMessages.WithLabelValues(OutcomeRecovered).Add(float64(outcome.Recovered()))
	c.batchMessages.WithLabelValues(OutcomeUnrecovered).Add(float64(len(outcome.FailedMessageIDs)))
}
