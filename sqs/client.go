package sqs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/slackmgr/sqsrecovery/message"
	"github.com/slackmgr/types"
)

// ErrNotInitialized is returned by methods that require [Client.Init].
var ErrNotInitialized = errors.New("SQS client not initialized")

// Client consumes a standard or FIFO SQS queue. It keeps received messages
// hidden while they are processed and, when processing fails, hands them to
// the configured error handler through a [message.Visibility] handle.
//
// Create a Client with [New], then call [Client.Init] once before any other
// method. Init is not thread-safe; all other methods are safe for concurrent
// use after Init returns.
type Client struct {
	client      sqsClient
	queueName   string
	queueURL    string
	fifo        bool
	awsCfg      *aws.Config
	opts        *Options
	extender    *visibilityExtender
	extenderCh  chan *inFlightMessage
	logger      types.Logger
	initialized bool
}

// New creates a Client for the named queue. Queue names ending in ".fifo"
// are treated as FIFO queues. New does not connect to AWS.
func New(awsCfg *aws.Config, queueName string, logger types.Logger, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	logger = logger.
		WithField("plugin", "sqs").
		WithField("queue_name", queueName)

	return &Client{
		awsCfg:     awsCfg,
		queueName:  queueName,
		fifo:       strings.HasSuffix(queueName, ".fifo"),
		opts:       options,
		extenderCh: make(chan *inFlightMessage, 1000),
		logger:     logger,
	}
}

// Init validates the options, resolves the queue URL and starts the
// background visibility extender, which runs until ctx is cancelled.
// It returns the receiver so that it can be chained with [New]:
//
//	client, err := sqs.New(&awsCfg, "orders", logger).Init(ctx)
//
// Subsequent calls on an initialized Client are no-ops.
func (c *Client) Init(ctx context.Context) (*Client, error) {
	if c.initialized {
		return c, nil
	}

	if c.queueName == "" {
		return nil, errors.New("SQS queue name cannot be empty")
	}

	if err := c.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	if c.opts.sqsClient != nil {
		c.client = c.opts.sqsClient
	} else {
		if c.awsCfg == nil {
			return nil, errors.New("AWS config cannot be nil")
		}

		c.client = sqs.NewFromConfig(*c.awsCfg, func(o *sqs.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.apiMaxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.apiMaxRetryAttempts)
		})
	}

	resp, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(c.queueName)})
	if err != nil {
		return nil, fmt.Errorf("failed to get SQS queue URL for %s: %w", c.queueName, err)
	}

	c.queueURL = aws.ToString(resp.QueueUrl)
	c.extender = newVisibilityExtender(c.opts, c.logger)

	go c.extender.run(ctx, c.extenderCh)

	c.initialized = true

	return c, nil
}

// Name returns the queue name supplied to [New].
func (c *Client) Name() string {
	return c.queueName
}

// SendOption sets an optional attribute of a message published by
// [Client.Send].
type SendOption func(*sqs.SendMessageInput)

// WithMessageGroupID sets the FIFO message group ID.
func WithMessageGroupID(id string) SendOption {
	return func(in *sqs.SendMessageInput) {
		in.MessageGroupId = aws.String(id)
	}
}

// WithDeduplicationID sets the FIFO message deduplication ID.
func WithDeduplicationID(id string) SendOption {
	return func(in *sqs.SendMessageInput) {
		in.MessageDeduplicationId = aws.String(id)
	}
}

// WithDelaySeconds delays delivery of a message on a standard queue.
func WithDelaySeconds(seconds int32) SendOption {
	return func(in *sqs.SendMessageInput) {
		in.DelaySeconds = seconds
	}
}

// Send publishes body to the queue. FIFO queues require both
// [WithMessageGroupID] and [WithDeduplicationID]; standard queues reject them.
func (c *Client) Send(ctx context.Context, body string, opts ...SendOption) error {
	if !c.initialized {
		return ErrNotInitialized
	}

	if body == "" {
		return errors.New("body cannot be empty")
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    &c.queueURL,
		MessageBody: &body,
	}

	for _, o := range opts {
		o(input)
	}

	groupID := aws.ToString(input.MessageGroupId)
	dedupID := aws.ToString(input.MessageDeduplicationId)

	if c.fifo {
		if groupID == "" {
			return errors.New("message group ID is required for FIFO queues")
		}

		if dedupID == "" {
			return errors.New("deduplication ID is required for FIFO queues")
		}

		if input.DelaySeconds != 0 {
			return errors.New("per-message delay is not supported by FIFO queues")
		}
	} else if groupID != "" || dedupID != "" {
		return errors.New("message group and deduplication IDs are only supported by FIFO queues")
	}

	if _, err := c.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}

	return nil
}

// Receive reads messages from the queue in a loop and sends each one to
// sinkCh as a [Delivery]. It closes sinkCh before returning.
//
// Receive pauses when the limits set by [WithMaxOutstandingMessages] or
// [WithMaxOutstandingBytes] are reached, and retries after 5 seconds when a
// receive call fails. It blocks until ctx is cancelled and then returns
// ctx.Err().
func (c *Client) Receive(ctx context.Context, sinkCh chan<- *Delivery) error {
	defer close(sinkCh)

	return c.poll(ctx, func(ctx context.Context, batch []*Delivery) error {
		for _, d := range batch {
			if err := trySend(ctx, d, sinkCh); err != nil {
				return err
			}
		}

		return nil
	})
}

// poll runs the receive loop, passing the deliveries of every non-empty
// ReceiveMessage response to dispatch.
func (c *Client) poll(ctx context.Context, dispatch func(ctx context.Context, batch []*Delivery) error) error {
	if !c.initialized {
		return ErrNotInitialized
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.WithField("wait_time", c.opts.receiveWaitTimeSeconds).Debug("Reading SQS queue")

		batch, err := c.read(ctx)
		if err == nil && len(batch) > 0 {
			err = dispatch(ctx, batch)
		}

		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Pause so that a persistent failure does not hammer the SQS API.
		c.logger.Errorf("Error reading SQS queue %s: %v", c.queueName, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *Client) read(ctx context.Context) ([]*Delivery, error) {
	for !c.extender.HasCapacity() {
		c.logger.Debug("SQS visibility extender is at capacity, waiting to read more messages")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: c.opts.receiveMaxNumberOfMessages,
		VisibilityTimeout:   c.opts.visibilityTimeoutSeconds,
		WaitTimeSeconds:     c.opts.receiveWaitTimeSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameMessageGroupId,
		},
	}

	output, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive SQS messages: %w", err)
	}

	now := time.Now()
	batch := make([]*Delivery, 0, len(output.Messages))

	for _, m := range output.Messages {
		d := c.newDelivery(m, now)

		if err := trySend(ctx, d.tracked, c.extenderCh); err != nil {
			return nil, err
		}

		batch = append(batch, d)

		c.logger.WithField("message_id", d.Message.ID).Debug("SQS message received")
	}

	return batch, nil
}

func (c *Client) newDelivery(m sqstypes.Message, receivedAt time.Time) *Delivery {
	msgID := aws.ToString(m.MessageId)
	receiptHandle := aws.ToString(m.ReceiptHandle)
	body := aws.ToString(m.Body)

	msg := message.New(msgID, c.queueName, body)
	msg.Headers[message.VisibilityHeader] = &receiptVisibility{
		client:        c,
		messageID:     msgID,
		receiptHandle: receiptHandle,
		timeout:       c.opts.visibilityChangeTimeout,
	}

	if count, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		msg.Headers[message.ApproximateReceiveCountHeader] = count
	}

	if groupID, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameMessageGroupId)]; ok {
		msg.Headers[message.MessageGroupIDHeader] = groupID
	}

	//nolint:contextcheck // Deletion must complete regardless of the caller's context state.
	deleteFunc := func() {
		c.deleteMessage(msgID, receiptHandle)
	}

	extendFunc := func(ctx context.Context) error {
		return c.changeMessageVisibility(ctx, msgID, receiptHandle, c.opts.visibilityTimeoutSeconds)
	}

	return &Delivery{
		Message:          msg,
		ReceiveTimestamp: receivedAt,
		tracked:          newInFlightMessage(msgID, c.opts.visibilityTimeoutSeconds, len(body), deleteFunc, extendFunc),
		handler:          c.opts.errorHandler,
	}
}

// deleteMessage uses its own short timeout because it must complete
// regardless of the caller's context state.
func (c *Client) deleteMessage(messageID, receiptHandle string) {
	logger := c.logger.WithField("message_id", messageID)

	input := &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &receiptHandle,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.client.DeleteMessage(ctx, input); err != nil {
		logger.Errorf("Failed to delete SQS message: %v", err)
		return
	}

	logger.Debug("SQS message deleted")
}

func (c *Client) changeMessageVisibility(ctx context.Context, messageID, receiptHandle string, seconds int32) error {
	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &c.queueURL,
		ReceiptHandle:     &receiptHandle,
		VisibilityTimeout: seconds,
	}

	if _, err := c.client.ChangeMessageVisibility(ctx, input); err != nil {
		return fmt.Errorf("failed to change visibility of SQS message %s: %w", messageID, err)
	}

	c.logger.
		WithField("message_id", messageID).
		WithField("visibility_timeout_seconds", seconds).
		Debug("SQS message visibility changed")

	return nil
}

func trySend[T any](ctx context.Context, v T, sinkCh chan<- T) error {
	select {
	case sinkCh <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
