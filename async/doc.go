// Package async provides the deferred result used by visibility changes and
// error handlers.
//
// A [Future] settles exactly once, either successfully (nil error) or with a
// failure. Work started with [Go] runs on its own goroutine, so callers are
// never blocked by the operation itself; they block only when they choose to
// [Future.Await] the result.
//
// Two combinators express the failure handling used by the error handlers:
//
//   - [Recover] turns a failure into a success after passing the failure to a
//     callback (typically for logging).
//   - [All] settles once every input has settled and joins their failures.
//
// A batch whose members must never fail each other is therefore written as
//
//	futures := make([]*async.Future, len(msgs))
//	for i, msg := range msgs {
//	    futures[i] = async.Recover(handle(msg), logFailure)
//	}
//	return async.All(futures...)
package async
