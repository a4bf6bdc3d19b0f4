package sqs

import (
	"errors"
	"time"

	"github.com/slackmgr/sqsrecovery/errorhandler"
)

// Option is a functional option for configuring a [Client].
// Options are passed to [New] and validated by [Client.Init].
type Option func(*Options)

// Options holds the resolved configuration for a [Client].
type Options struct {
	visibilityTimeoutSeconds   int32
	receiveMaxNumberOfMessages int32
	receiveWaitTimeSeconds     int32
	apiMaxRetryAttempts        int
	apiMaxRetryBackoffDelay    time.Duration
	visibilityChangeTimeout    time.Duration
	maxMessageExtension        time.Duration
	maxOutstandingMessages     int
	maxOutstandingBytes        int
	maxConcurrentProcessors    int
	errorHandler               errorhandler.Handler
	sqsClient                  sqsClient
}

func newOptions() *Options {
	return &Options{
		visibilityTimeoutSeconds:   30,
		receiveMaxNumberOfMessages: 10,
		receiveWaitTimeSeconds:     20,
		apiMaxRetryAttempts:        5,
		apiMaxRetryBackoffDelay:    10 * time.Second,
		visibilityChangeTimeout:    5 * time.Second,
		maxMessageExtension:        10 * time.Minute,
		maxOutstandingMessages:     100,
		maxOutstandingBytes:        1e6, // 1 MB
		maxConcurrentProcessors:    10,
	}
}

func (o *Options) validate() error {
	if o.visibilityTimeoutSeconds < 10 || o.visibilityTimeoutSeconds > 3600 {
		return errors.New("visibility timeout must be between 10 seconds and 1 hour")
	}

	if o.receiveMaxNumberOfMessages < 1 || o.receiveMaxNumberOfMessages > 10 {
		return errors.New("max number of messages per receive must be between 1 and 10")
	}

	if o.receiveWaitTimeSeconds < 0 || o.receiveWaitTimeSeconds > 20 {
		return errors.New("receive wait time must be between 0 and 20 seconds")
	}

	if o.apiMaxRetryAttempts < 0 || o.apiMaxRetryAttempts > 10 {
		return errors.New("max API retry attempts must be between 0 and 10")
	}

	if o.apiMaxRetryBackoffDelay < time.Second || o.apiMaxRetryBackoffDelay > 30*time.Second {
		return errors.New("max API retry backoff delay must be between 1 and 30 seconds")
	}

	if o.visibilityChangeTimeout < 100*time.Millisecond || o.visibilityChangeTimeout > time.Minute {
		return errors.New("visibility change timeout must be between 100 milliseconds and 1 minute")
	}

	if o.maxMessageExtension < time.Minute || o.maxMessageExtension > time.Hour {
		return errors.New("max message extension must be between 1 minute and 1 hour")
	}

	if o.maxOutstandingMessages < 1 {
		return errors.New("max outstanding messages must be greater than or equal to 1")
	}

	if o.maxOutstandingBytes < 1e4 {
		return errors.New("max outstanding bytes must be greater than or equal to 10 KB")
	}

	if o.maxConcurrentProcessors < 1 || o.maxConcurrentProcessors > 1000 {
		return errors.New("max concurrent processors must be between 1 and 1000")
	}

	return nil
}

// WithVisibilityTimeout sets the visibility timeout requested for received
// messages. While a message is being processed its timeout is extended in
// the background. Must be between 10 and 3600 seconds. Default: 30.
func WithVisibilityTimeout(seconds int32) Option {
	return func(o *Options) {
		o.visibilityTimeoutSeconds = seconds
	}
}

// WithReceiveMaxNumberOfMessages sets the maximum number of messages returned
// by one ReceiveMessage call. It is also the largest batch handed to a
// [BatchProcessor]. Must be between 1 and 10. Default: 10.
func WithReceiveMaxNumberOfMessages(n int32) Option {
	return func(o *Options) {
		o.receiveMaxNumberOfMessages = n
	}
}

// WithReceiveWaitTimeSeconds sets the long-poll duration of each
// ReceiveMessage call. Must be between 0 and 20 seconds. Default: 20.
func WithReceiveWaitTimeSeconds(seconds int32) Option {
	return func(o *Options) {
		o.receiveWaitTimeSeconds = seconds
	}
}

// WithAPIMaxRetryAttempts sets the maximum number of attempts for failed SQS
// API calls. Must be between 0 and 10. Default: 5.
func WithAPIMaxRetryAttempts(n int) Option {
	return func(o *Options) {
		o.apiMaxRetryAttempts = n
	}
}

// WithAPIMaxRetryBackoffDelay sets the maximum delay between SQS API retry
// attempts. Must be between 1 and 30 seconds. Default: 10 seconds.
func WithAPIMaxRetryBackoffDelay(d time.Duration) Option {
	return func(o *Options) {
		o.apiMaxRetryBackoffDelay = d
	}
}

// WithVisibilityChangeTimeout bounds each ChangeMessageVisibility call issued
// through a message's visibility handle. Must be between 100 milliseconds and
// 1 minute. Default: 5 seconds.
func WithVisibilityChangeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.visibilityChangeTimeout = d
	}
}

// WithMaxMessageExtension sets how long after first receipt a message's
// visibility timeout may still be extended. Older messages are dropped from
// extension tracking and become visible again when their timeout expires.
// Must be between 1 minute and 1 hour. Default: 10 minutes.
func WithMaxMessageExtension(d time.Duration) Option {
	return func(o *Options) {
		o.maxMessageExtension = d
	}
}

// WithMaxOutstandingMessages sets the number of in-flight messages at which
// receiving pauses. Must be at least 1. Default: 100.
func WithMaxOutstandingMessages(n int) Option {
	return func(o *Options) {
		o.maxOutstandingMessages = n
	}
}

// WithMaxOutstandingBytes sets the total body size of in-flight messages at
// which receiving pauses. Must be at least 10 KB. Default: 1 MB.
func WithMaxOutstandingBytes(n int) Option {
	return func(o *Options) {
		o.maxOutstandingBytes = n
	}
}

// WithMaxConcurrentProcessors sets how many messages ([Client.Listen]) or
// batches ([Client.ListenBatch]) are processed at the same time.
// Must be between 1 and 1000. Default: 10.
func WithMaxConcurrentProcessors(n int) Option {
	return func(o *Options) {
		o.maxConcurrentProcessors = n
	}
}

// WithErrorHandler sets the handler that schedules redelivery of messages
// whose processing failed. Without one, a failed message is abandoned and
// becomes visible again once its current visibility timeout expires.
func WithErrorHandler(h errorhandler.Handler) Option {
	return func(o *Options) {
		o.errorHandler = h
	}
}

// WithSQSClient replaces the AWS SQS client. Intended for tests.
func WithSQSClient(client sqsClient) Option {
	return func(o *Options) {
		o.sqsClient = client
	}
}
