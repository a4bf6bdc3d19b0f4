package errorhandler

import (
	"context"
	"fmt"
	"sync"

	"github.com/slackmgr/sqsrecovery/async"
	"github.com/slackmgr/sqsrecovery/backoff"
	"github.com/slackmgr/sqsrecovery/message"
	"github.com/slackmgr/types"
)

// Handler reacts to failed message processing by scheduling redelivery.
// It is implemented by [ErrorHandler] and consumed by queue listeners.
type Handler interface {
	// Handle schedules redelivery of a single message. The returned future
	// fails if the retry could not be scheduled.
	Handle(ctx context.Context, msg *message.Message, cause error) *async.Future

	// HandleBatch schedules redelivery of every message in msgs. The returned
	// future succeeds once all messages have been handled, even if some of
	// them could not be recovered.
	HandleBatch(ctx context.Context, msgs []*message.Message, cause error) *async.Future
}

// TimeoutFunc returns the visibility timeout, in seconds, to apply to msg.
type TimeoutFunc func(msg *message.Message) int32

// BatchOutcome summarises one call to [ErrorHandler.HandleBatch].
type BatchOutcome struct {
	Total            int
	FailedMessageIDs []string
}

// Recovered returns the number of messages whose retry was scheduled.
func (o BatchOutcome) Recovered() int {
	return o.Total - len(o.FailedMessageIDs)
}

// ErrorHandler sets the visibility timeout of failed messages to a value
// chosen by its [TimeoutFunc]. Create one with [NewImmediateRetry],
// [NewExponentialBackoff] or [New].
type ErrorHandler struct {
	name    string
	timeout TimeoutFunc
	opts    *Options
	logger  types.Logger
}

// New creates an ErrorHandler that applies the timeout returned by timeout.
// The name identifies the strategy in log output.
func New(name string, timeout TimeoutFunc, logger types.Logger, opts ...Option) *ErrorHandler {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &ErrorHandler{
		name:    name,
		timeout: timeout,
		opts:    options,
		logger:  logger.WithField("error_handler", name),
	}
}

// NewImmediateRetry creates an ErrorHandler that sets the visibility timeout
// to zero, making failed messages available for redelivery immediately.
func NewImmediateRetry(logger types.Logger, opts ...Option) *ErrorHandler {
	return New("immediate_retry", func(*message.Message) int32 { return 0 }, logger, opts...)
}

// NewExponentialBackoff creates an ErrorHandler that delays redelivery by the
// timeout calc computes from each message's receive count.
func NewExponentialBackoff(logger types.Logger, calc *backoff.Calculator, opts ...Option) *ErrorHandler {
	return New("exponential_backoff_"+calc.Policy().String(), calc.ForMessage, logger, opts...)
}

// Name returns the strategy name given at construction.
func (h *ErrorHandler) Name() string {
	return h.name
}

// Handle schedules redelivery of msg. The returned future fails with an error
// wrapping [message.ErrInvalidVisibilityHeader] if msg has no usable
// visibility handle, or with the queue's error if the change was rejected.
// Failures are also logged and passed to the configured [Recorder].
func (h *ErrorHandler) Handle(ctx context.Context, msg *message.Message, cause error) *async.Future {
	change := h.changeVisibility(ctx, msg)

	return async.Go(func() error {
		if err := change.Await(); err != nil {
			h.notRecoverable(ctx, msg, cause, err)
			return err
		}

		return nil
	})
}

// HandleBatch schedules redelivery of every message in msgs concurrently.
// Per-message failures are logged and recorded but never fail the returned
// future, which succeeds once every visibility change has settled.
func (h *ErrorHandler) HandleBatch(ctx context.Context, msgs []*message.Message, cause error) *async.Future {
	if len(msgs) == 0 {
		return async.Completed()
	}

	tally := &batchTally{outcome: BatchOutcome{Total: len(msgs)}}
	futures := make([]*async.Future, len(msgs))

	for i, msg := range msgs {
		futures[i] = async.Recover(h.Handle(ctx, msg, cause), func(error) {
			tally.fail(messageID(msg))
		})
	}

	return async.Go(func() error {
		// Recovered futures never fail.
		_ = async.All(futures...).Await()

		h.logOutcome(tally.snapshot())

		if h.opts.outcomeListener != nil {
			h.opts.outcomeListener(tally.snapshot())
		}

		return nil
	})
}

func (h *ErrorHandler) changeVisibility(ctx context.Context, msg *message.Message) *async.Future {
	vis, err := message.VisibilityOf(msg)
	if err != nil {
		return async.Failed(err)
	}

	seconds := h.timeout(msg)

	h.logger.
		WithField("message_id", msg.ID).
		WithField("visibility_timeout_seconds", seconds).
		Debug("Changing message visibility after processing failure")

	f := vis.ChangeTo(ctx, seconds)
	if f == nil {
		return async.Failed(fmt.Errorf("%w: nil visibility result on message %s", message.ErrInvalidVisibilityHeader, msg.ID))
	}

	return f
}

func (h *ErrorHandler) notRecoverable(ctx context.Context, msg *message.Message, cause, err error) {
	logger := h.logger.WithField("message_id", messageID(msg))

	logger.Errorf("Message not recovered: %v", err)

	if h.opts.recorder == nil {
		return
	}

	record := &UnrecoverableRecord{
		MessageID:    messageID(msg),
		ReceiveCount: message.ReceiveCount(msg),
		Reason:       err.Error(),
		Timestamp:    h.opts.clock().UTC(),
	}

	if msg != nil {
		record.Source = msg.Source
	}

	if cause != nil {
		record.Cause = cause.Error()
	}

	//nolint:contextcheck // Recording must not be cut short by the caller's cancellation.
	if recErr := h.opts.recorder.RecordUnrecoverable(context.WithoutCancel(ctx), record); recErr != nil {
		logger.Errorf("Failed to record unrecoverable message: %v", recErr)
	}
}

func (h *ErrorHandler) logOutcome(outcome BatchOutcome) {
	logger := h.logger.
		WithField("batch_size", outcome.Total).
		WithField("recovered", outcome.Recovered())

	if len(outcome.FailedMessageIDs) == 0 {
		logger.Debug("Batch error handling completed")
		return
	}

	logger.
		WithField("failed_message_ids", outcome.FailedMessageIDs).
		Warnf("Batch error handling completed with %d unrecovered messages", len(outcome.FailedMessageIDs))
}

// batchTally collects per-message failures of one batch.
type batchTally struct {
	mu      sync.Mutex
	outcome BatchOutcome
}

func (t *batchTally) fail(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.outcome.FailedMessageIDs = append(t.outcome.FailedMessageIDs, id)
}

func (t *batchTally) snapshot() BatchOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.outcome
	out.FailedMessageIDs = append([]string(nil), t.outcome.FailedMessageIDs...)

	return out
}

func messageID(msg *message.Message) string {
	if msg == nil {
		return ""
	}

	return msg.ID
}
