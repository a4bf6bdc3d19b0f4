// Package dynamodb stores records of unrecoverable messages in DynamoDB. Its
// [Client] implements [errorhandler.Recorder] and can be installed on an
// error handler with [errorhandler.WithRecorder].
//
// # Table layout
//
// Every record is keyed by the name of the queue the message came from
// (partition key, "pk") and a time-ordered sort key ("sk"):
//
//	UNRECOVERABLE#<utc timestamp>#<message id>
//
// The [GSIMessageID] index (partition key "message_id", sort key "sk")
// finds the records of one message across queues. The JSON-encoded record is
// stored in "body", and "ttl" holds the Unix expiry time used by DynamoDB TTL.
//
// # Getting Started
//
//	recorder := dynamodb.New(&awsCfg, tableName,
//	    dynamodb.WithTimeToLive(7*24*time.Hour),
//	)
//
//	if err := recorder.Connect(); err != nil {
//	    return err
//	}
//
//	if err := recorder.Init(ctx, false); err != nil {
//	    return err
//	}
//
//	handler := errorhandler.NewImmediateRetry(logger, errorhandler.WithRecorder(recorder))
//
// By default, [Client.Connect] creates an AWS SDK v2 DynamoDB client from the
// supplied [aws.Config]. Supply [WithAPI] to inject a custom or mock
// implementation.
//
// # Concurrency
//
// [Client] is safe for concurrent use by multiple goroutines.
package dynamodb
