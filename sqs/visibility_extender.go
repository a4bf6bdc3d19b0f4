package sqs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slackmgr/types"
	"golang.org/x/sync/semaphore"
)

// visibilityExtender keeps received messages hidden while they are being
// processed, by renewing their visibility timeout before it expires.
//
// Extension is best-effort: a message whose extension fails is dropped from
// tracking and may be redelivered to another consumer. The tracking map is
// owned by the run goroutine; the counters are read by the receive loop.
type visibilityExtender struct {
	tracked      map[string]*inFlightMessage
	trackedCount atomic.Int64
	trackedBytes atomic.Int64
	opts         *Options
	logger       types.Logger
}

func newVisibilityExtender(opts *Options, logger types.Logger) *visibilityExtender {
	return &visibilityExtender{
		tracked: make(map[string]*inFlightMessage),
		opts:    opts,
		logger:  logger,
	}
}

// HasCapacity reports whether the outstanding message and byte limits allow
// receiving more messages.
func (e *visibilityExtender) HasCapacity() bool {
	return e.trackedCount.Load() < int64(e.opts.maxOutstandingMessages) &&
		e.trackedBytes.Load() < int64(e.opts.maxOutstandingBytes)
}

func (e *visibilityExtender) run(ctx context.Context, sourceCh <-chan *inFlightMessage) {
	e.logger.Info("SQS visibility extender started")
	defer e.logger.Info("SQS visibility extender exited")

	ticker := time.NewTicker(e.checkInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		case msg, ok := <-sourceCh:
			if !ok {
				return
			}

			e.track(msg)
		}
	}
}

func (e *visibilityExtender) checkInterval() time.Duration {
	return max(time.Duration(e.opts.visibilityTimeoutSeconds/3)*time.Second, 5*time.Second)
}

// sweep drops settled and expired messages and extends the ones that are due.
func (e *visibilityExtender) sweep(ctx context.Context) {
	if len(e.tracked) == 0 {
		return
	}

	visibility := time.Duration(e.opts.visibilityTimeoutSeconds) * time.Second
	due := make([]*inFlightMessage, 0, len(e.tracked))

	for _, msg := range e.tracked {
		switch {
		case msg.Settled():
			e.untrack(msg)
		case msg.Age()+visibility >= e.opts.maxMessageExtension:
			e.logger.WithField("message_id", msg.messageID).Warn("SQS message reached the maximum visibility extension, no longer extending")
			e.untrack(msg)
		case msg.DueForExtension():
			due = append(due, msg)
		}
	}

	if len(due) > 0 {
		e.extend(ctx, due)
	}
}

// extend renews the visibility of every message in due. Small sets are
// extended one at a time; larger ones use up to three concurrent calls.
func (e *visibilityExtender) extend(ctx context.Context, due []*inFlightMessage) {
	started := time.Now()

	workers := int64(1)
	if len(due) >= 3 {
		workers = 3
	}

	sem := semaphore.NewWeighted(workers)
	failed := make(chan *inFlightMessage, len(due))

	var wg sync.WaitGroup

	for _, msg := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Go(func() {
			defer sem.Release(1)

			if err := msg.Extend(ctx); err != nil && ctx.Err() == nil {
				e.logger.WithField("message_id", msg.messageID).Errorf("Failed to extend SQS message visibility, no longer extending: %v", err)
				failed <- msg
			}
		})
	}

	wg.Wait()
	close(failed)

	if ctx.Err() != nil {
		return
	}

	for msg := range failed {
		e.untrack(msg)
	}

	e.logger.
		WithField("count", len(due)).
		WithField("elapsed", time.Since(started)).
		Debug("SQS visibility extension completed")
}

// track starts extending msg. A redelivery of a message that is still tracked
// replaces the earlier entry, and its counts are released first.
func (e *visibilityExtender) track(msg *inFlightMessage) {
	if old, ok := e.tracked[msg.messageID]; ok {
		e.untrack(old)
	}

	e.trackedCount.Add(1)
	e.trackedBytes.Add(msg.size)

	e.tracked[msg.messageID] = msg
}

func (e *visibilityExtender) untrack(msg *inFlightMessage) {
	if cur, ok := e.tracked[msg.messageID]; !ok || cur != msg {
		return
	}

	e.trackedCount.Add(-1)
	e.trackedBytes.Add(-msg.size)

	delete(e.tracked, msg.messageID)
}
