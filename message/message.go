// Package message defines the envelope handed to consumers and error
// handlers, and the visibility handle through which a received message is
// hidden from or returned to other consumers.
package message

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/slackmgr/sqsrecovery/async"
)

const (
	// VisibilityHeader holds the message's [Visibility] handle.
	VisibilityHeader = "Sqs_VisibilityTimeout"

	// ApproximateReceiveCountHeader holds the number of times the message has
	// been delivered, as a string-encoded integer.
	ApproximateReceiveCountHeader = "Sqs_Msa_ApproximateReceiveCount"

	// MessageGroupIDHeader holds the FIFO message group ID, when present.
	MessageGroupIDHeader = "Sqs_Msa_MessageGroupId"
)

// ErrInvalidVisibilityHeader is returned when a message carries no
// [Visibility] handle, or carries a value of another type under
// [VisibilityHeader].
var ErrInvalidVisibilityHeader = errors.New("invalid visibility header")

// Visibility changes the remaining visibility timeout of one received message.
//
// A handle is bound to the receipt of a single delivery. It stops working
// once the message is deleted, or once the timeout expires and the message is
// redelivered with a new handle.
type Visibility interface {
	// ChangeTo sets the visibility timeout to seconds, counted from now.
	// It does not block; the returned future fails if the queue rejects the
	// change.
	ChangeTo(ctx context.Context, seconds int32) *async.Future
}

// Message is a received queue message. Headers are owned by the consumer
// that produced the message and must not be modified by handlers.
type Message struct {
	ID      string
	Source  string
	Body    string
	Headers map[string]any
}

// New returns a Message with an initialised header map.
func New(id, source, body string) *Message {
	return &Message{
		ID:      id,
		Source:  source,
		Body:    body,
		Headers: map[string]any{},
	}
}

// Header returns the header value stored under key, or nil.
func (m *Message) Header(key string) any {
	if m == nil || m.Headers == nil {
		return nil
	}

	return m.Headers[key]
}

// Binder is implemented by [Visibility] handles that can tell whether they
// are bound to a receipt. Bound must be safe to call on a nil receiver.
type Binder interface {
	Bound() bool
}

// VisibilityOf returns the visibility handle carried by msg. It returns an
// error wrapping [ErrInvalidVisibilityHeader] if the header is missing, holds
// a value that is not a [Visibility], or holds a [Binder] that is not bound.
//
// A nil pointer of a type that does not implement [Binder] is not detected
// here; it fails when its ChangeTo is called.
func VisibilityOf(msg *Message) (Visibility, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: message is nil", ErrInvalidVisibilityHeader)
	}

	v, ok := msg.Header(VisibilityHeader).(Visibility)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w on message %s", ErrInvalidVisibilityHeader, msg.ID)
	}

	if b, ok := v.(Binder); ok && !b.Bound() {
		return nil, fmt.Errorf("%w: unbound handle on message %s", ErrInvalidVisibilityHeader, msg.ID)
	}

	return v, nil
}

// ReceiveCount returns the number of times msg has been delivered. A missing,
// non-numeric or non-positive count is reported as 1.
func ReceiveCount(msg *Message) int {
	s, ok := msg.Header(ApproximateReceiveCountHeader).(string)
	if !ok {
		return 1
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}

	return n
}
