package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slackmgr/sqsrecovery/async"
	"github.com/slackmgr/sqsrecovery/backoff"
)

// ErrVisibilityTimeoutOutOfRange is returned when a visibility change asks
// for a timeout outside the range SQS accepts.
var ErrVisibilityTimeoutOutOfRange = errors.New("visibility timeout out of range")

// receiptVisibility implements [message.Visibility] for one SQS receipt
// handle.
type receiptVisibility struct {
	client        *Client
	messageID     string
	receiptHandle string
	timeout       time.Duration
}

// Bound reports whether v is tied to a client and a receipt handle.
func (v *receiptVisibility) Bound() bool {
	return v != nil && v.client != nil && v.receiptHandle != ""
}

// ChangeTo issues a ChangeMessageVisibility call on its own goroutine. Once
// issued, the call is not cut short by cancellation of ctx; it is bounded by
// the client's visibility change timeout instead.
func (v *receiptVisibility) ChangeTo(ctx context.Context, seconds int32) *async.Future {
	if seconds < 0 || seconds > backoff.MaxVisibilityTimeoutSeconds {
		return async.Failed(fmt.Errorf("%w: %d seconds (message %s)", ErrVisibilityTimeoutOutOfRange, seconds, v.messageID))
	}

	ctx = context.WithoutCancel(ctx)

	return async.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()

		return v.client.changeMessageVisibility(ctx, v.messageID, v.receiptHandle, seconds)
	})
}
