// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer manages message consumption from a RabbitMQ queue with a prefetch
// of one: at most a single unacknowledged delivery is in flight per instance.
// Horizontal scaling runs more instances against the same queue.
type Consumer struct {
	// con is the parent connection wrapper for reconnection logic.
	con *Con
	// mu guards the channel and delivery stream during resubscription.
	mu sync.Mutex
	// rabChan is the AMQP channel used for consuming messages.
	rabChan *amqp091.Channel
	// workChan streams incoming deliveries to be processed.
	workChan <-chan amqp091.Delivery
	// cfg stores consumer configuration such as queue name and args.
	cfg ConsumerConfig
	// isClosed indicates whether the consumer has been closed.
	isClosed atomic.Bool

	jobs *sync.WaitGroup
}

// newConsumer initializes a Consumer: opens a channel, applies the prefetch
// limit, starts consuming, and returns the instance.
func newConsumer(c *Con, cfg ConsumerConfig) (*Consumer, error) {
	cons := &Consumer{
		con:  c,
		cfg:  cfg,
		jobs: new(sync.WaitGroup),
	}

	if err := cons.subscribe(); err != nil {
		return nil, err
	}

	return cons, nil
}

// subscribe opens a fresh channel and registers the consumer on the queue.
// It transparently redials the connection when it is gone.
func (c *Consumer) subscribe() error {
	ch, err := c.con.channel()
	if err != nil {
		return err
	}

	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	if err = ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	tag := "worker-" + uuid.NewString()[:8]

	msgCh, err := ch.Consume(c.cfg.QueueName, tag, false, false, false, false, c.cfg.Args)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.mu.Lock()
	c.rabChan = ch
	c.workChan = msgCh
	c.mu.Unlock()

	return nil
}

// Consume blocks until the next delivery arrives and returns it wrapped as a
// broker.Message. A dropped delivery stream triggers one resubscription
// through the connector's bounded redial; when that fails the error
// propagates, which is fatal to the caller's loop by design.
func (c *Consumer) Consume() (broker.Message, error) {
	c.con.cons.Add(1)
	defer c.con.cons.Done()

	for !c.isClosed.Load() {
		c.mu.Lock()
		work := c.workChan
		c.mu.Unlock()

		select {
		case <-c.con.stop:
			return nil, ConnClosedError{}
		case val, ok := <-work:
			if !ok {
				if c.isClosed.Load() {
					break
				}

				c.con.log.Warn("delivery stream closed, resubscribing",
					zap.String("queue", c.cfg.QueueName))

				if err := c.subscribe(); err != nil {
					return nil, err
				}

				continue
			}

			c.jobs.Add(1)

			return broker.Message(&Message{
				deliver: val,
				wg:      c.jobs,
			}), nil
		}
	}

	c.jobs.Wait()

	return nil, ConsumerClosedError{}
}

// Close stops message consumption and closes the AMQP channel.
// It is safe to call after Consume has returned.
func (c *Consumer) Close() error {
	if c.isClosed.Swap(true) {
		return nil
	}

	c.jobs.Wait()

	c.mu.Lock()
	ch := c.rabChan
	c.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		return nil
	}

	if err := ch.Close(); err != nil {
		return fmt.Errorf("close consumer channel: %w", err)
	}

	return nil
}
