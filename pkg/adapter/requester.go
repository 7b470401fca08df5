// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Requester implements synchronous request/response on top of the
// asynchronous queue. Each call publishes a request tagged with a fresh
// correlation id and blocks until the response carrying that id arrives or
// the deadline elapses.
//
// In filter mode the response travels on the main queue itself: the call
// registers a transient consumer there, acknowledges the one matching
// message and requeues everything else so background workers and other
// concurrent callers see it again. Every outstanding waiter therefore
// observes every non-matching message, which is O(waiters x traffic) churn
// under load. Exclusive mode avoids the churn with a per-call reply queue
// while keeping the same observable contract.
//
// Responders must embed the correlation id in the response body under the
// "correlation_id" key as well as in the delivery metadata: on the shared
// queue the body-level id is what tells a response apart from the request it
// answers, and a matching delivery without one is requeued as the in-flight
// request.
type Requester struct {
	// con is the parent connection wrapper for reconnection logic.
	con *Con
	// pub publishes the request leg to the main exchange.
	pub *Publisher
	// cfg stores the queue, mode and poll interval for response waits.
	cfg RequesterConfig
	// isClosed indicates whether the requester has been closed.
	isClosed atomic.Bool
}

// newRequester initializes a Requester and its request-leg publisher.
func newRequester(c *Con, cfg RequesterConfig) (*Requester, error) {
	if cfg.Mode == "" {
		cfg.Mode = ReplyModeFilter
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	pub, err := newPublisher(c, PublisherConfig{
		ExchangeName: cfg.ExchangeName,
		RoutingKey:   cfg.RoutingKey,
	}, false)
	if err != nil {
		return nil, err
	}

	return &Requester{
		con: c,
		pub: pub,
		cfg: cfg,
	}, nil
}

// Request publishes the event with a fresh correlation id and waits for the
// matching response. TimeoutError is a normal outcome; ConnectionError means
// the broker dropped mid-wait. The transient consumer registration is
// removed on every exit path.
func (r *Requester) Request(ctx context.Context, event broker.Event, timeout time.Duration) (broker.Event, error) {
	if r.isClosed.Load() {
		return nil, PublisherClosedError{}
	}

	r.con.cons.Add(1)
	defer r.con.cons.Done()

	corrID := uuid.NewString()

	if r.cfg.Mode == ReplyModeExclusive {
		return r.requestExclusive(ctx, event, corrID, timeout)
	}

	return r.requestFilter(ctx, event, corrID, timeout)
}

// requestFilter consumes the main queue, filtering by correlation id and
// requeueing everything that belongs to someone else.
func (r *Requester) requestFilter(ctx context.Context, event broker.Event, corrID string, timeout time.Duration) (broker.Event, error) {
	ch, err := r.con.channel()
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := ch.Close(); err != nil {
			r.con.log.Debug("close requester channel", zap.Error(err))
		}
	}()

	// One delivery at a time keeps the rejection dance from hoarding the queue.
	if err = ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	tag := "rpc-" + corrID[:8]

	deliveries, err := ch.Consume(r.cfg.QueueName, tag, false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := ch.Cancel(tag, false); err != nil {
			r.con.log.Debug("cancel transient consumer", zap.Error(err))
		}
	}()

	if err = r.pub.PublishEvent(ctx, event, broker.WithCorrelationID(corrID)); err != nil {
		return nil, err
	}

	return r.await(ctx, deliveries, corrID, timeout, true)
}

// requestExclusive declares a transient exclusive reply queue for this call
// and asks the responder, via reply_to metadata, to answer there directly.
func (r *Requester) requestExclusive(ctx context.Context, event broker.Event, corrID string, timeout time.Duration) (broker.Event, error) {
	ch, err := r.con.channel()
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := ch.Close(); err != nil {
			r.con.log.Debug("close requester channel", zap.Error(err))
		}
	}()

	// Auto-delete drops the queue once the consumer is cancelled, so a timed
	// out call leaves nothing behind.
	q, err := ch.QueueDeclare("wikichat.reply."+corrID[:8], false, true, true, false, nil)
	if err != nil {
		return nil, err
	}

	tag := "rpc-" + corrID[:8]

	deliveries, err := ch.Consume(q.Name, tag, false, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := ch.Cancel(tag, false); err != nil {
			r.con.log.Debug("cancel transient consumer", zap.Error(err))
		}
	}()

	if err = r.pub.PublishEvent(ctx, event,
		broker.WithCorrelationID(corrID),
		broker.WithReplyTo(q.Name),
	); err != nil {
		return nil, err
	}

	return r.await(ctx, deliveries, corrID, timeout, false)
}

// await drives the wait loop: accept the delivery matching corrID, dispose
// of everything else. With requeue set, non-matching deliveries are nacked
// back onto the queue for their real owner; without it they are foreign
// strays on a private queue and are acknowledged away. The poll interval
// bounds how late a dropped connection is noticed mid-wait.
func (r *Requester) await(ctx context.Context, deliveries <-chan amqp091.Delivery, corrID string, timeout time.Duration, requeue bool) (broker.Event, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, TimeoutError{CorrelationID: corrID, After: timeout}
		case <-tick.C:
			// A dropped connection mid-wait fails the call; it is never
			// transparently redialed under an in-flight consumer registration.
			if !r.con.alive() {
				return nil, ConnectionError{Err: amqp091.ErrClosed}
			}
		case d, ok := <-deliveries:
			if !ok {
				return nil, ConnectionError{Err: amqp091.ErrClosed}
			}

			// A delivery with no correlation id at all is treated as
			// non-matching, never as an error.
			if d.CorrelationId != corrID {
				if requeue {
					if err := d.Nack(false, true); err != nil {
						return nil, ConnectionError{Err: err}
					}
				} else if err := d.Ack(false); err != nil {
					return nil, ConnectionError{Err: err}
				}

				continue
			}

			var resp broker.Event
			if err := json.Unmarshal(d.Body, &resp); err != nil {
				if ackErr := d.Ack(false); ackErr != nil {
					return nil, ConnectionError{Err: ackErr}
				}

				return nil, SerializationError{Err: err}
			}

			// The request leg shares the queue and carries the same metadata
			// correlation id. Responses embed the id in the body, requests do
			// not; a caller must never accept its own request as the answer.
			if requeue && resp.String("correlation_id") == "" {
				if err := d.Nack(false, true); err != nil {
					return nil, ConnectionError{Err: err}
				}

				continue
			}

			if err := d.Ack(false); err != nil {
				return nil, ConnectionError{Err: err}
			}

			return resp, nil
		}
	}
}

// Close releases the request-leg publisher.
func (r *Requester) Close() error {
	if r.isClosed.Swap(true) {
		return nil
	}

	return r.pub.Close()
}
