package sqs

import (
	"context"
	"fmt"
	"sync"

	"github.com/slackmgr/sqsrecovery/message"
	"golang.org/x/sync/semaphore"
)

// MessageProcessor processes one message. A non-nil error routes the
// message to the error handler.
type MessageProcessor func(ctx context.Context, msg *message.Message) error

// BatchProcessor processes the messages of one receive call together. A
// non-nil error routes the whole batch to the error handler.
type BatchProcessor func(ctx context.Context, msgs []*message.Message) error

// Listen receives messages and runs process on each of them, with at most
// [WithMaxConcurrentProcessors] messages in progress at once. Successfully
// processed messages are deleted; failed ones are passed to the error
// handler. A panic in process counts as a failure.
//
// Listen blocks until ctx is cancelled and waits for in-progress messages to
// finish before returning ctx.Err().
func (c *Client) Listen(ctx context.Context, process MessageProcessor) error {
	return c.listen(ctx, func(ctx context.Context, batch []*Delivery) []func() {
		jobs := make([]func(), len(batch))

		for i, d := range batch {
			jobs[i] = func() { c.processOne(ctx, d, process) }
		}

		return jobs
	})
}

// ListenBatch receives messages and runs process once per receive call, with
// at most [WithMaxConcurrentProcessors] batches in progress at once. When
// process succeeds every message of the batch is deleted; when it fails the
// batch is passed to the error handler's batch path, which schedules each
// message independently.
//
// ListenBatch blocks until ctx is cancelled and waits for in-progress batches
// to finish before returning ctx.Err().
func (c *Client) ListenBatch(ctx context.Context, process BatchProcessor) error {
	return c.listen(ctx, func(ctx context.Context, batch []*Delivery) []func() {
		return []func(){func() { c.processBatch(ctx, batch, process) }}
	})
}

func (c *Client) listen(ctx context.Context, jobsFor func(ctx context.Context, batch []*Delivery) []func()) error {
	sem := semaphore.NewWeighted(int64(c.opts.maxConcurrentProcessors))

	var wg sync.WaitGroup
	defer wg.Wait()

	return c.poll(ctx, func(ctx context.Context, batch []*Delivery) error {
		for i, job := range jobsFor(ctx, batch) {
			if err := sem.Acquire(ctx, 1); err != nil {
				c.abandon(batch[i:])
				return err
			}

			wg.Go(func() {
				defer sem.Release(1)
				job()
			})
		}

		return nil
	})
}

func (c *Client) processOne(ctx context.Context, d *Delivery, process MessageProcessor) {
	err := safely(func() error { return process(ctx, d.Message) })
	if err == nil {
		d.Ack()
		return
	}

	c.logger.WithField("message_id", d.Message.ID).Debugf("SQS message processing failed: %v", err)

	// Handler failures are logged by the handler itself.
	_ = d.Nack(ctx, err).Await()
}

func (c *Client) processBatch(ctx context.Context, batch []*Delivery, process BatchProcessor) {
	msgs := make([]*message.Message, len(batch))
	for i, d := range batch {
		msgs[i] = d.Message
	}

	err := safely(func() error { return process(ctx, msgs) })
	if err == nil {
		for _, d := range batch {
			d.Ack()
		}

		return
	}

	c.logger.WithField("batch_size", len(batch)).Debugf("SQS batch processing failed: %v", err)

	_ = NackBatch(ctx, c.opts.errorHandler, batch, err).Await()
}

// abandon releases deliveries that will not be processed. They become
// visible again when their visibility timeout expires.
func (c *Client) abandon(ds []*Delivery) {
	for _, d := range ds {
		d.tracked.Release()
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()

	return fn()
}
