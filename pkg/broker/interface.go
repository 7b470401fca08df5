// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package broker

import (
	"context"
	"time"
)

// Publisher defines the interface for publishing messages to a broker.
// Implementations serialize the payload, mark it persistent, and attach
// whatever transport metadata the options request.
type Publisher interface {
	// Publish sends a raw payload in the given context.
	// It returns an error if the message could not be delivered.
	Publish(ctx context.Context, data []byte, opts ...PublishOption) error

	// PublishEvent serializes the event to JSON and sends it.
	// A payload that cannot be encoded fails with a serialization error
	// and is never retried.
	PublishEvent(ctx context.Context, event Event, opts ...PublishOption) error

	// Close releases any resources held by the publisher, such as channels or connections.
	// After Close, further calls to Publish should return an error.
	Close() error
}

// Consumer defines the interface for consuming messages from a broker.
// Each implementation should manage its own channel and message stream.
type Consumer interface {
	// Consume retrieves the next available message or an error if the consumer is closed
	// or the connection could not be recovered.
	// The returned Message must be acknowledged or rejected by the caller.
	Consume() (Message, error)

	// Close stops message consumption and releases any resources.
	// After Close, subsequent calls to Consume should return an error.
	Close() error
}

// Requester publishes a request event and blocks until the response carrying
// the same correlation id arrives, or the timeout elapses.
//
// Responders must embed the correlation id in the response body under the
// "correlation_id" key, mirroring the delivery metadata. On a shared queue the
// body-level id is what distinguishes a response from the request it answers;
// a matching delivery without one is treated as the in-flight request and
// requeued.
type Requester interface {
	// Request tags the event with a fresh correlation id, publishes it, and
	// waits for the matching response. A timeout is a normal outcome and is
	// reported as an error value distinguishable from transport failures.
	Request(ctx context.Context, event Event, timeout time.Duration) (Event, error)

	// Close releases the requester's channel.
	Close() error
}

// RequeueError signals that a delivery on a shared queue is addressed to
// another consumer. Consumer loops map it to a negative acknowledgment with
// requeue, outside any retry accounting, so the real owner sees the message
// again.
type RequeueError struct{}

// Error implements the error interface for RequeueError.
func (RequeueError) Error() string {
	return "message addressed to another consumer, requeue requested"
}

// Message represents a single broker-delivered message, allowing inspection and acknowledgment.
// Implementations wrap the broker-specific delivery type.
type Message interface {
	// Headers returns the message metadata headers.
	Headers() map[string]interface{}

	// ContentType returns the MIME type of the message payload.
	ContentType() string

	// CorrelationID returns the correlation id attached to the delivery,
	// or an empty string when absent.
	CorrelationID() string

	// ReplyTo returns the reply queue requested by the producer, if any.
	ReplyTo() string

	// RetryCount returns the x-retry-count header value, or 0 when absent.
	RetryCount() int

	// IsRedelivered signals if this delivery is a redelivery of a previous message.
	IsRedelivered() bool

	// Body returns the raw payload bytes.
	Body() []byte

	// RoutingKey returns the message routing key set on the delivery.
	RoutingKey() string

	// Ack acknowledges successful processing of the message.
	// It signals the broker to remove the message from the queue.
	Ack() error

	// Nack negatively acknowledges the message, requeuing it.
	// The message becomes visible again for other consumers.
	Nack() error

	// Reject drops the message without requeueing it.
	// With dead-letter arguments on the queue the broker routes it to the DLQ.
	Reject() error
}
