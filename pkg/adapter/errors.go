package adapter

import (
	"fmt"
	"time"
)

// ConnectionError is returned when the broker is unreachable or the
// connection dropped and could not be re-established within the configured
// number of attempts.
type ConnectionError struct {
	// Attempts is the number of dial attempts made, zero when the error
	// describes a drop detected outside the dial loop.
	Attempts int
	// Err is the last underlying transport error.
	Err error
}

// SerializationError indicates a payload that could not be encoded to or
// decoded from the wire format. It is surfaced immediately and never retried.
type SerializationError struct {
	Err error
}

// TimeoutError reports that no matching response arrived within the deadline.
// It is a normal outcome of a request/response call, not a transport failure.
type TimeoutError struct {
	CorrelationID string
	After         time.Duration
}

// ConnClosedError is returned when operations are attempted on a closed connection.
type ConnClosedError struct{}

// PublisherConfEmptyError indicates that a nil or empty publisher configuration
// was provided when creating a new publisher.
type PublisherConfEmptyError struct{}

// ConsumerConfEmptyError indicates that a nil or empty consumer configuration
// was provided when creating a new consumer.
type ConsumerConfEmptyError struct{}

// RequesterConfEmptyError indicates that a nil or empty requester configuration
// was provided when creating a new requester.
type RequesterConfEmptyError struct{}

// PublisherClosedError is returned when publishing is attempted on a closed publisher.
type PublisherClosedError struct{}

// ConsumerClosedError is returned when consuming is attempted after the consumer has been closed.
type ConsumerClosedError struct{}

// Error implements the error interface for ConnectionError.
func (e ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rabbit unreachable after %d attempts: %v", e.Attempts, e.Err)
	}

	return fmt.Sprintf("rabbit connection lost: %v", e.Err)
}

// Unwrap exposes the underlying transport error.
func (e ConnectionError) Unwrap() error {
	return e.Err
}

// Error implements the error interface for SerializationError.
func (e SerializationError) Error() string {
	return fmt.Sprintf("payload not encodable: %v", e.Err)
}

// Unwrap exposes the underlying encoding error.
func (e SerializationError) Unwrap() error {
	return e.Err
}

// Error implements the error interface for TimeoutError.
func (e TimeoutError) Error() string {
	return fmt.Sprintf("no response for correlation id %s within %s", e.CorrelationID, e.After)
}

// Error implements the error interface for ConnClosedError.
// It indicates the client explicitly closed the connection.
func (ConnClosedError) Error() string {
	return "connection closed by client"
}

// Error implements the error interface for ConsumerConfEmptyError.
// It notifies that consumer configuration was not provided.
func (ConsumerConfEmptyError) Error() string {
	return "empty consumer config passed, unable to create"
}

// Error implements the error interface for PublisherConfEmptyError.
// It notifies that publisher configuration was not provided.
func (PublisherConfEmptyError) Error() string {
	return "empty publisher config passed, unable to create"
}

// Error implements the error interface for RequesterConfEmptyError.
// It notifies that requester configuration was not provided.
func (RequesterConfEmptyError) Error() string {
	return "empty requester config passed, unable to create"
}

// Error implements the error interface for PublisherClosedError.
// It signals that the publisher has already been closed.
func (PublisherClosedError) Error() string {
	return "publisher already closed, unable to provide"
}

// Error implements the error interface for ConsumerClosedError.
// It signals that the consumer has already been closed.
func (ConsumerClosedError) Error() string {
	return "consumer already closed, unable to provide"
}
