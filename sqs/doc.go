// Package sqs consumes AWS SQS queues and routes processing failures to an
// [errorhandler.Handler].
//
// # Client
//
// [Client] reads messages from a standard or FIFO queue. While a message is
// in flight, a background goroutine extends its visibility timeout so that it
// is not redelivered before processing completes. Each received message is
// exposed as a [Delivery] whose [message.Message] carries a
// [message.Visibility] handle bound to the receipt handle, together with the
// approximate receive count reported by SQS.
//
//	handler := errorhandler.NewExponentialBackoff(logger, calc)
//
//	client, err := sqs.New(&awsCfg, "orders", logger,
//	    sqs.WithErrorHandler(handler),
//	).Init(ctx)
//
// # Listening
//
// [Client.Listen] processes messages one by one, deleting those that succeed
// and passing failures to the error handler's single-message path.
// [Client.ListenBatch] processes the messages of each receive call together
// and passes a failed batch to the batch path.
//
//	err := client.Listen(ctx, func(ctx context.Context, msg *message.Message) error {
//	    return process(ctx, msg.Body)
//	})
//
// Callers that need full control can use [Client.Receive] and settle each
// [Delivery] with Ack or Nack themselves.
//
// # Visibility Extension
//
// Visibility extension is best-effort. If an extension call fails, the
// message is dropped from tracking and becomes visible again when the current
// timeout expires, so processing should be idempotent. Once a delivery is
// nacked it is no longer extended, and the visibility timeout chosen by the
// error handler stands.
package sqs
