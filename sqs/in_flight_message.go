package sqs

import (
	"context"
	"sync"
	"time"
)

// inFlightMessage is the extender's view of a received message. Once the
// message is settled (deleted, handed to an error handler or abandoned) its
// callbacks are cleared and the extender stops touching it.
type inFlightMessage struct {
	messageID         string
	receivedAt        time.Time
	lastExtendedAt    time.Time
	visibilityTimeout time.Duration
	size              int64
	deleteFunc        func()
	extendFunc        func(ctx context.Context) error
	mu                sync.Mutex
}

func newInFlightMessage(messageID string, visibilityTimeoutSeconds int32, size int, deleteFunc func(), extendFunc func(ctx context.Context) error) *inFlightMessage {
	now := time.Now()

	return &inFlightMessage{
		messageID:         messageID,
		receivedAt:        now,
		lastExtendedAt:    now,
		visibilityTimeout: time.Duration(visibilityTimeoutSeconds) * time.Second,
		size:              int64(size),
		deleteFunc:        deleteFunc,
		extendFunc:        extendFunc,
	}
}

// Delete removes the message from the queue. Only the first call after
// receipt has any effect.
func (m *inFlightMessage) Delete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteFunc == nil {
		return
	}

	m.deleteFunc()
	m.settle()
}

// Release stops tracking the message without deleting it. It reports whether
// the message was still unsettled.
func (m *inFlightMessage) Release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteFunc == nil {
		return false
	}

	m.settle()

	return true
}

func (m *inFlightMessage) settle() {
	m.deleteFunc = nil
	m.extendFunc = nil
}

// Settled reports whether the message was deleted or released.
func (m *inFlightMessage) Settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteFunc == nil
}

// Age returns the time elapsed since the message was received.
func (m *inFlightMessage) Age() time.Duration {
	return time.Since(m.receivedAt)
}

// DueForExtension reports whether more than half of the current visibility
// timeout has elapsed since the last extension.
func (m *inFlightMessage) DueForExtension() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.extendFunc != nil && time.Since(m.lastExtendedAt) > m.visibilityTimeout/2
}

// Extend renews the visibility timeout. It is a no-op once the message is
// settled, so an extension never overrides a visibility change made by an
// error handler.
func (m *inFlightMessage) Extend(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.extendFunc == nil {
		return nil
	}

	if err := m.extendFunc(ctx); err != nil {
		return err
	}

	m.lastExtendedAt = time.Now()

	return nil
}
