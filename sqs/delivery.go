package sqs

import (
	"context"
	"time"

	"github.com/slackmgr/sqsrecovery/async"
	"github.com/slackmgr/sqsrecovery/errorhandler"
	"github.com/slackmgr/sqsrecovery/message"
)

// Delivery is one received SQS message together with the callbacks that
// settle it. Exactly one of Ack or Nack should be called; later calls are
// no-ops.
type Delivery struct {
	// Message carries the body and headers. Its headers hold a
	// [message.Visibility] handle bound to this delivery's receipt handle,
	// the approximate receive count and, for FIFO queues, the group ID.
	Message *message.Message

	// ReceiveTimestamp is the local time the message was received.
	ReceiveTimestamp time.Time

	tracked *inFlightMessage
	handler errorhandler.Handler
}

// Ack deletes the message from the queue, signalling successful processing.
func (d *Delivery) Ack() {
	d.tracked.Delete()
}

// Nack stops extending the message's visibility and passes it to the
// configured error handler, which decides when the message becomes visible
// again. The returned future fails if the handler could not schedule the
// retry. Without an error handler, or if the delivery was already settled,
// Nack returns a completed future and the message reappears once its current
// visibility timeout expires.
func (d *Delivery) Nack(ctx context.Context, cause error) *async.Future {
	if !d.tracked.Release() || d.handler == nil {
		return async.Completed()
	}

	return d.handler.Handle(ctx, d.Message, cause)
}

// NackBatch stops extending the visibility of every delivery in ds and passes
// the unsettled ones to handler as a single batch. The returned future
// succeeds once every message has been handled.
func NackBatch(ctx context.Context, handler errorhandler.Handler, ds []*Delivery, cause error) *async.Future {
	msgs := make([]*message.Message, 0, len(ds))

	for _, d := range ds {
		if d.tracked.Release() {
			msgs = append(msgs, d.Message)
		}
	}

	if handler == nil {
		return async.Completed()
	}

	return handler.HandleBatch(ctx, msgs, cause)
}
