// Package postgres stores records of unrecoverable SQS messages in PostgreSQL.
//
// [Client] implements errorhandler.Recorder, so it can be passed to an error
// handler with errorhandler.WithRecorder. Every message whose retry could not
// be scheduled then leaves a row behind that operators can inspect or replay.
// Only delivery metadata is stored, never the message body.
//
// # Usage
//
// Create a client using [New] with functional options, call [Client.Connect]
// to establish the connection pool, and then [Client.Init] to create the
// database schema:
//
//	client := postgres.New(
//	    postgres.WithHost("localhost"),
//	    postgres.WithUser("postgres"),
//	    postgres.WithPassword("secret"),
//	    postgres.WithDatabase("queues"),
//	)
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	if err := client.Init(ctx, false); err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := errorhandler.NewImmediateRetry(logger, errorhandler.WithRecorder(client))
//
// # Table
//
// [Client.Init] creates a single table, unrecoverable_messages by default
// (see [WithTable]). Queryable fields are stored as columns with indexes on
// (source, recorded_at), message_id and expires_at. The attrs JSONB column
// holds the full record.
//
// # TTL and Cleanup
//
// Rows expire 14 days after they are written, matching the SQS maximum
// retention period. Use [WithTimeToLive] to change this. Expired rows are
// excluded from reads, and a background goroutine started by [Client.Init]
// deletes them every hour ([WithTTLCleanupInterval], [WithTTLCleanupDisabled]).
//
// # Schema Validation
//
// When [Client.Init] is called with skipSchemaValidation set to false, it
// queries information_schema.columns and verifies that every expected column
// exists with the correct data type and nullability.
package postgres
