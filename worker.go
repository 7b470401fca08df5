// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package wikichat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/askwiki/wikichat/pkg/broker"

	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// Listener encapsulates common parameters of the background consumer:
//   - consumer: the queue subscription deliveries are pulled from.
//   - publisher: the republish leg used by the retry policy.
//   - maxRetries: the retry cap before a message is dead-lettered.
//
// Listener itself does not process messages; it acts as a factory that
// creates an Instance where the real work happens.
type Listener struct {
	consumer   broker.Consumer
	publisher  broker.Publisher
	maxRetries int
	log        *zap.Logger
}

// NewListener constructs a Listener with the default retry cap of 3.
func NewListener(consumer broker.Consumer, publisher broker.Publisher) *Listener {
	return &Listener{
		consumer:   consumer,
		publisher:  publisher,
		maxRetries: defaultMaxRetries,
	}
}

// SetMaxRetries overrides the retry cap. A message is dead-lettered after
// n+1 total handler invocations.
func (l *Listener) SetMaxRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("invalid retry cap: %d", n)
	}

	l.maxRetries = n

	return nil
}

// SetLogger overrides the default nop logger.
func (l *Listener) SetLogger(log *zap.Logger) {
	l.log = log
}

// Instance is a running listener created from Listener. Deliveries are
// processed strictly one at a time; the consumer's prefetch of one means the
// broker never hands this instance a second unacknowledged message.
type Instance struct {
	consumer   broker.Consumer
	publisher  broker.Publisher
	router     *Router
	maxRetries int
	log        *zap.Logger
}

// Init takes a Router and returns a ready-to-run Instance.
func (l *Listener) Init(router *Router) *Instance {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}

	return &Instance{
		consumer:   l.consumer,
		publisher:  l.publisher,
		router:     router,
		maxRetries: l.maxRetries,
		log:        log,
	}
}

// ListenAndServe enters an infinite loop that consumes messages from the
// broker. Handler failures are fully contained by the retry policy and never
// end the loop; if consumer.Consume() returns an error, the connection is
// gone beyond recovery and the error is propagated to the caller.
func (i *Instance) ListenAndServe() error {
	if i.router == nil || i.router.empty() {
		return EmptyRouterError{}
	}

	for {
		msg, err := i.consumer.Consume()
		if err != nil {
			return err
		}

		i.handle(context.Background(), msg)
	}
}

// handle decodes one delivery, dispatches it, and settles it exactly once.
func (i *Instance) handle(ctx context.Context, msg broker.Message) {
	var evt broker.Event
	if err := json.Unmarshal(msg.Body(), &evt); err != nil {
		// Undecodable payloads cannot succeed on any retry; quarantine them.
		i.log.Error("poison message, dead-lettering",
			zap.String("correlation_id", msg.CorrelationID()),
			zap.Error(err),
		)

		if err := msg.Reject(); err != nil {
			i.log.Error("reject poison message", zap.Error(err))
		}

		return
	}

	handler := i.router.handlerFor(evt)
	if handler == nil {
		i.log.Warn("unrouted event, dead-lettering",
			zap.String("event_type", evt.String("event_type")),
		)

		if err := msg.Reject(); err != nil {
			i.log.Error("reject unrouted event", zap.Error(err))
		}

		return
	}

	if err := handler(ctx, evt, msg); err != nil {
		if errors.Is(err, broker.RequeueError{}) {
			// Somebody else's delivery on the shared queue; make it visible
			// again without touching the retry counter.
			i.log.Debug("foreign delivery, requeueing",
				zap.String("correlation_id", msg.CorrelationID()),
			)

			if err := msg.Nack(); err != nil {
				i.log.Error("requeue foreign delivery", zap.Error(err))
			}

			return
		}

		i.retry(ctx, msg, err)

		return
	}

	if err := msg.Ack(); err != nil {
		i.log.Error("ack processed message", zap.Error(err))
	}
}

// retry applies the bounded-retry policy to a failed delivery. Below the cap
// a copy of the message with an incremented x-retry-count header is published
// back to the main exchange and the original is acknowledged, replacing the
// message with its successor at the tail of the queue. At the cap the
// delivery is rejected without requeue and the broker's dead-letter routing
// moves it to the DLQ.
func (i *Instance) retry(ctx context.Context, msg broker.Message, cause error) {
	count := msg.RetryCount()

	if count >= i.maxRetries {
		i.log.Error("retries exhausted, dead-lettering",
			zap.String("correlation_id", msg.CorrelationID()),
			zap.Int("retries", count),
			zap.Error(cause),
		)

		if err := msg.Reject(); err != nil {
			i.log.Error("reject exhausted message", zap.Error(err))
		}

		return
	}

	i.log.Warn("handler failed, republishing",
		zap.String("correlation_id", msg.CorrelationID()),
		zap.Int("retry", count+1),
		zap.Int("max", i.maxRetries),
		zap.Error(cause),
	)

	err := i.publisher.Publish(ctx, msg.Body(),
		broker.WithRetryCount(count+1),
		broker.WithCorrelationID(msg.CorrelationID()),
		broker.WithReplyTo(msg.ReplyTo()),
	)
	if err != nil {
		// The successor never made it out; keep the original delivery alive
		// with its counter unchanged.
		i.log.Error("republish failed, requeueing original", zap.Error(err))

		if err := msg.Nack(); err != nil {
			i.log.Error("requeue original message", zap.Error(err))
		}

		return
	}

	if err := msg.Ack(); err != nil {
		i.log.Error("ack replaced message", zap.Error(err))
	}
}

// Shutdown initiates a graceful shutdown. It waits either for the consumer
// to drain or for the context to be canceled/expired.
func (i *Instance) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		if err := i.consumer.Close(); err != nil {
			i.log.Error("shutdown", zap.Error(fmt.Errorf("%w: %w", ConsumerCloseError{}, err)))
		}

		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
