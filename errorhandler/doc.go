// Package errorhandler decides when a message whose processing failed becomes
// visible again, and applies that decision through the message's visibility
// handle.
//
// An [ErrorHandler] is created either for immediate retry, which sets the
// visibility timeout to zero, or with a [github.com/slackmgr/sqsrecovery/backoff.Calculator]
// that grows the timeout with each delivery:
//
//	h := errorhandler.NewImmediateRetry(logger)
//
//	calc, _ := backoff.New(backoff.WithPolicy(backoff.FullJitter))
//	h := errorhandler.NewExponentialBackoff(logger, calc,
//	    errorhandler.WithRecorder(store),
//	)
//
// # Single messages
//
// [ErrorHandler.Handle] fails when the message has no valid visibility handle
// ([github.com/slackmgr/sqsrecovery/message.ErrInvalidVisibilityHeader]) and
// otherwise returns the result of the visibility change itself. The caller
// learns whether scheduling the retry succeeded.
//
// # Batches
//
// [ErrorHandler.HandleBatch] runs the single-message path for every message
// concurrently. A failure for one message, whether its visibility header is
// invalid or the queue rejected the change, is logged and passed to the
// [Recorder]; it never stops the other messages and never fails the batch.
// The returned future succeeds once every change has settled.
//
// Handlers keep no state between calls and are safe for concurrent use.
package errorhandler
