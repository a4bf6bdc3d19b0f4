package errorhandler

import (
	"context"
	"time"
)

// UnrecoverableRecord describes a message whose retry could not be scheduled.
// It carries delivery metadata only, never the message body.
type UnrecoverableRecord struct {
	MessageID    string    `json:"message_id"`
	Source       string    `json:"source"`
	ReceiveCount int       `json:"receive_count"`
	Reason       string    `json:"reason"`
	Cause        string    `json:"cause,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Recorder is notified about every message the handler failed to recover.
// Implementations must be safe for concurrent use; errors they return are
// logged and otherwise ignored.
type Recorder interface {
	RecordUnrecoverable(ctx context.Context, record *UnrecoverableRecord) error
}

// RecorderFunc adapts a function to the [Recorder] interface.
type RecorderFunc func(ctx context.Context, record *UnrecoverableRecord) error

// RecordUnrecoverable calls f.
func (f RecorderFunc) RecordUnrecoverable(ctx context.Context, record *UnrecoverableRecord) error {
	return f(ctx, record)
}
