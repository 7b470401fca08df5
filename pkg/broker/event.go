// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package broker

// Event is an opaque structured payload published to or decoded from the
// broker. The wire representation is a UTF-8 JSON document of this mapping;
// transport metadata (correlation id, retry count, delivery mode) never lives
// in the body.
type Event map[string]interface{}

// String returns the value of a string field, or an empty string when the
// field is absent or not a string.
func (e Event) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}

	return ""
}

// PublishOptions collects per-call transport metadata for a publish.
type PublishOptions struct {
	// RoutingKey overrides the publisher's configured routing key.
	RoutingKey string
	// CorrelationID is attached as AMQP metadata, not embedded in the body.
	CorrelationID string
	// ReplyTo names the queue a responder should answer on.
	ReplyTo string
	// RetryCount sets the x-retry-count header. Zero leaves the header unset.
	RetryCount int
}

// PublishOption mutates PublishOptions before a publish.
type PublishOption func(*PublishOptions)

// WithRoutingKey overrides the routing key for a single publish.
func WithRoutingKey(key string) PublishOption {
	return func(o *PublishOptions) {
		o.RoutingKey = key
	}
}

// WithCorrelationID tags the message with a correlation id.
func WithCorrelationID(id string) PublishOption {
	return func(o *PublishOptions) {
		o.CorrelationID = id
	}
}

// WithReplyTo asks responders to answer on the named queue.
func WithReplyTo(queue string) PublishOption {
	return func(o *PublishOptions) {
		o.ReplyTo = queue
	}
}

// WithRetryCount sets the retry counter carried in the message headers.
func WithRetryCount(n int) PublishOption {
	return func(o *PublishOptions) {
		o.RetryCount = n
	}
}

// ApplyPublishOptions folds the options into a PublishOptions value.
func ApplyPublishOptions(opts []PublishOption) PublishOptions {
	var options PublishOptions
	for _, opt := range opts {
		opt(&options)
	}

	return options
}
