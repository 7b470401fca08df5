package adapter

import (
	"sync"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records the settlement of a delivery tag.
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	rejected bool
	requeued bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.rejected = true
	f.requeued = requeue
	return nil
}

func newTestMessage(d amqp091.Delivery) (*Message, *sync.WaitGroup) {
	wg := new(sync.WaitGroup)
	wg.Add(1)

	return &Message{deliver: d, wg: wg}, wg
}

func TestHeaderRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		want    int
	}{
		{name: "absent headers", headers: nil, want: 0},
		{name: "absent key", headers: amqp091.Table{"other": 5}, want: 0},
		{name: "int32", headers: amqp091.Table{RetryCountHeader: int32(2)}, want: 2},
		{name: "int64", headers: amqp091.Table{RetryCountHeader: int64(3)}, want: 3},
		{name: "int", headers: amqp091.Table{RetryCountHeader: 1}, want: 1},
		{name: "float64", headers: amqp091.Table{RetryCountHeader: float64(4)}, want: 4},
		{name: "garbage", headers: amqp091.Table{RetryCountHeader: "two"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, headerRetryCount(tt.headers))
		})
	}
}

func TestMessageAccessors(t *testing.T) {
	msg, _ := newTestMessage(amqp091.Delivery{
		RoutingKey:    "wikipedia_chatbot_queue",
		ContentType:   "application/json",
		CorrelationId: "corr-1",
		ReplyTo:       "wikichat.reply.ab",
		Redelivered:   true,
		Body:          []byte(`{"message":"ping"}`),
		Headers:       amqp091.Table{RetryCountHeader: int32(1)},
	})

	assert.Equal(t, "wikipedia_chatbot_queue", msg.RoutingKey())
	assert.Equal(t, "application/json", msg.ContentType())
	assert.Equal(t, "corr-1", msg.CorrelationID())
	assert.Equal(t, "wikichat.reply.ab", msg.ReplyTo())
	assert.True(t, msg.IsRedelivered())
	assert.Equal(t, []byte(`{"message":"ping"}`), msg.Body())
	assert.Equal(t, 1, msg.RetryCount())
}

func TestMessageAck(t *testing.T) {
	ack := &fakeAcknowledger{}
	msg, wg := newTestMessage(amqp091.Delivery{Acknowledger: ack})

	require.NoError(t, msg.Ack())
	assert.True(t, ack.acked)

	// Settling twice must decrement the in-flight group only once.
	require.NoError(t, msg.Ack())
	wg.Wait()
}

func TestMessageNackRequeues(t *testing.T) {
	ack := &fakeAcknowledger{}
	msg, wg := newTestMessage(amqp091.Delivery{Acknowledger: ack})

	require.NoError(t, msg.Nack())
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued, "Nack must make the message visible again")
	wg.Wait()
}

func TestMessageRejectDoesNotRequeue(t *testing.T) {
	ack := &fakeAcknowledger{}
	msg, wg := newTestMessage(amqp091.Delivery{Acknowledger: ack})

	require.NoError(t, msg.Reject())
	assert.True(t, ack.rejected)
	assert.False(t, ack.requeued, "Reject must leave the message to dead-letter routing")
	wg.Wait()
}
