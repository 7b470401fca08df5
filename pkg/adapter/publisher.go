// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const contentTypeJSON = "application/json"

// Publisher handles persistent message publication to RabbitMQ.
// The channel is lazily re-created whenever the connection heals, so a
// publish after a broker restart transparently redials first. In confirm
// mode every publish additionally blocks until the broker acknowledges the
// delivery.
type Publisher struct {
	// con is the parent connection wrapper for reconnection logic.
	con *Con
	// mu guards rabChan replacement during self-healing.
	mu sync.Mutex
	// rabChan is the AMQP channel used for publishing messages.
	rabChan *amqp091.Channel
	// cfg stores publisher settings like exchange name, routing key, and AppId.
	cfg PublisherConfig
	// confirm puts the channel into confirm mode and waits for broker acks.
	confirm bool
	// isClosed indicates whether the publisher has been closed.
	isClosed atomic.Bool
}

// newPublisher initializes a Publisher: opens a dedicated channel and sets up mimetype detection.
func newPublisher(c *Con, cfg PublisherConfig, confirm bool) (*Publisher, error) {
	p := &Publisher{
		con:     c,
		cfg:     cfg,
		confirm: confirm,
	}

	mimetype.SetLimit(mimeReadLimit)

	if _, err := p.liveChannel(); err != nil {
		return nil, err
	}

	return p, nil
}

// Publish sends raw bytes to the configured exchange and routing key with a
// detected content type.
func (p *Publisher) Publish(ctx context.Context, data []byte, opts ...broker.PublishOption) error {
	return p.send(ctx, data, mimetype.Detect(data).String(), broker.ApplyPublishOptions(opts))
}

// PublishEvent serializes the event as a JSON document and sends it.
// An event that cannot be encoded fails with SerializationError and is not
// retried.
func (p *Publisher) PublishEvent(ctx context.Context, event broker.Event, opts ...broker.PublishOption) error {
	body, err := json.Marshal(event)
	if err != nil {
		return SerializationError{Err: err}
	}

	return p.send(ctx, body, contentTypeJSON, broker.ApplyPublishOptions(opts))
}

// send delivers exactly one persistent message per call. A channel lost to a
// connection drop is re-created once via the connector's self-healing dial;
// a second failure surfaces to the caller, who owns further retries.
func (p *Publisher) send(ctx context.Context, body []byte, contentType string, o broker.PublishOptions) error {
	p.con.cons.Add(1)
	defer p.con.cons.Done()

	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if p.isClosed.Load() {
			return PublisherClosedError{}
		}

		select {
		case <-p.con.stop:
			return ConnClosedError{}
		default:
		}

		ch, err := p.liveChannel()
		if err != nil {
			return err
		}

		if p.confirm {
			lastErr = p.sendConfirmed(ctx, ch, body, contentType, o)
		} else {
			lastErr = ch.PublishWithContext(setPublishArgs(ctx, p.cfg, body, contentType, o))
		}

		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, amqp091.ErrClosed) {
			p.dropChannel()

			continue
		}

		return lastErr
	}

	return ConnectionError{Err: lastErr}
}

// sendConfirmed publishes with a deferred confirmation and waits for the
// broker's ack. A nack counts as a failed delivery.
func (p *Publisher) sendConfirmed(ctx context.Context, ch *amqp091.Channel, body []byte, contentType string, o broker.PublishOptions) error {
	conf, err := ch.PublishWithDeferredConfirmWithContext(setPublishArgs(ctx, p.cfg, body, contentType, o))
	if err != nil {
		return err
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}

	if !acked {
		return fmt.Errorf("broker rejected delivery %d", conf.DeliveryTag)
	}

	return nil
}

// setPublishArgs maps PublisherConfig, payload and per-call options into AMQP publish arguments.
//
//nolint:gocritic // returning multiple values is justified in this context
func setPublishArgs(ctx context.Context, cfg PublisherConfig, body []byte, contentType string, o broker.PublishOptions) (_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) {
	key = cfg.RoutingKey
	if o.RoutingKey != "" {
		key = o.RoutingKey
	}

	msg = amqp091.Publishing{
		ContentType:   contentType,
		Body:          body,
		AppId:         cfg.AppId,
		MessageId:     uuid.NewString(),
		DeliveryMode:  amqp091.Persistent,
		CorrelationId: o.CorrelationID,
		ReplyTo:       o.ReplyTo,
	}

	if o.RetryCount > 0 {
		msg.Headers = amqp091.Table{RetryCountHeader: int32(o.RetryCount)}
	}

	return ctx, cfg.ExchangeName, key, false, false, msg
}

// liveChannel returns the current channel, opening a new one when the old
// channel is gone. Opening a channel redials the connection if needed.
func (p *Publisher) liveChannel() (*amqp091.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rabChan != nil && !p.rabChan.IsClosed() {
		return p.rabChan, nil
	}

	ch, err := p.con.channel()
	if err != nil {
		return nil, err
	}

	if p.confirm {
		if err := ch.Confirm(false); err != nil {
			return nil, fmt.Errorf("confirm channel for publisher: %w", err)
		}
	}

	p.rabChan = ch

	return ch, nil
}

func (p *Publisher) dropChannel() {
	p.mu.Lock()
	p.rabChan = nil
	p.mu.Unlock()
}

// Close marks the publisher as closed and closes the AMQP channel.
func (p *Publisher) Close() error {
	if p.isClosed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	ch := p.rabChan
	p.rabChan = nil
	p.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		return nil
	}

	if err := ch.Close(); err != nil {
		p.con.log.Debug("close publisher channel", zap.Error(err))
	}

	return nil
}
