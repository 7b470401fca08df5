// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Message wraps an AMQP delivery and tracks acknowledgment state.
// It uses sync.Once to ensure the WaitGroup is decremented only once upon Ack/Nack/Reject.
type Message struct {
	// deliver holds the original AMQP delivery metadata and payload.
	deliver amqp091.Delivery
	// Once prevents multiple Done calls on the WaitGroup.
	sync.Once
	// wg tracks the number of in-flight messages for graceful shutdown.
	wg *sync.WaitGroup
}

// RoutingKey returns the message routing key set on the AMQP delivery.
func (m *Message) RoutingKey() string {
	return m.deliver.RoutingKey
}

// Headers returns the message headers set on the AMQP delivery.
func (m *Message) Headers() map[string]interface{} {
	return m.deliver.Headers
}

// ContentType returns the MIME content type of the message payload.
func (m *Message) ContentType() string {
	return m.deliver.ContentType
}

// CorrelationID returns the correlation id attached to the delivery.
func (m *Message) CorrelationID() string {
	return m.deliver.CorrelationId
}

// ReplyTo returns the reply queue requested by the producer, if any.
func (m *Message) ReplyTo() string {
	return m.deliver.ReplyTo
}

// RetryCount returns the x-retry-count header value, defaulting to 0 when
// the header is absent or malformed.
func (m *Message) RetryCount() int {
	return headerRetryCount(m.deliver.Headers)
}

// IsRedelivered indicates if the delivery is a redelivery (duplicate) of a previous message.
func (m *Message) IsRedelivered() bool {
	return m.deliver.Redelivered
}

// Body returns the raw message payload as a byte slice.
func (m *Message) Body() []byte {
	return m.deliver.Body
}

// Ack acknowledges successful processing of the message.
// It signals the broker that the message can be removed from the queue.
// The WaitGroup Done is called exactly once.
func (m *Message) Ack() error {
	defer func() {
		m.Do(func() {
			m.wg.Done()
		})
	}()

	return m.deliver.Ack(false)
}

// Nack negatively acknowledges the message and requeues it.
// It signals that processing failed but the message should become visible
// again. The WaitGroup Done is called exactly once.
func (m *Message) Nack() error {
	defer func() {
		m.Do(func() {
			m.wg.Done()
		})
	}()

	return m.deliver.Nack(false, true)
}

// Reject drops the message without requeueing it. The broker's dead-letter
// routing moves it to the DLQ. The WaitGroup Done is called exactly once.
func (m *Message) Reject() error {
	defer func() {
		m.Do(func() {
			m.wg.Done()
		})
	}()

	return m.deliver.Reject(false)
}

// headerRetryCount extracts the retry counter from an AMQP header table.
// The AMQP field type depends on the publishing client, so every integer
// representation is accepted.
func headerRetryCount(headers amqp091.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
