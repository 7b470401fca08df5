// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Con encapsulates a RabbitMQ connection with bounded-retry recovery.
// It owns the physical connection, declares the durable topology on every
// establishment, and hands out publishers, consumers and requesters.
type Con struct {
	// mu serializes connection replacement against channel creation.
	mu sync.Mutex
	// connection holds the active AMQP connection, nil before first dial.
	connection *amqp091.Connection
	// url is the target URI for dialing the broker.
	url *url.URL
	// cfg stores the AMQP client configuration.
	cfg amqp091.Config
	// top names the exchange/queue quadruple declared on every connect.
	top Topology
	// maxRetries bounds dial attempts before the connector gives up.
	maxRetries int
	// stop signals every derived publisher and consumer to exit.
	stop chan struct{}
	// cons tracks in-flight operations to allow graceful shutdown.
	cons sync.WaitGroup

	log *zap.Logger
}

// Dial connects to the broker and declares the full topology before
// returning. Connection attempts are bounded by cfg.MaxRetries (default 3)
// with an exponential backoff of 2^attempt seconds between them; exhausting
// the attempts fails with ConnectionError. A nil logger falls back to a nop
// logger.
func Dial(cfg *Client, log *zap.Logger) (*Con, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		clientCfg = amqp091.Config{
			SASL: []amqp091.Authentication{
				&amqp091.PlainAuth{Username: cfg.Username, Password: cfg.Password},
			},
			Vhost:      cfg.VHost,
			Properties: cfg.Properties,
			Heartbeat:  cfg.TcpHeartBeat,
		}
		maxRetries = cfg.MaxRetries
		port       = cfg.Port
	)

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if port == 0 {
		port = 5672
	}

	c := &Con{
		url: &url.URL{
			Scheme: "amqp",
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		},
		cfg:        clientCfg,
		top:        cfg.Topology.orDefaults(),
		maxRetries: maxRetries,
		stop:       make(chan struct{}),
		log:        log,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect dials the broker with bounded attempts and declares the topology.
// Callers must hold mu.
func (c *Con) connect() error {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		con, err := amqp091.DialConfig(c.url.String(), c.cfg)
		if err == nil {
			c.connection = con

			if err = c.declareTopology(); err != nil {
				_ = con.Close()
				c.connection = nil

				return err
			}

			c.log.Info("connected to rabbit", zap.String("host", c.url.Host))

			return nil
		}

		lastErr = err
		c.log.Warn("rabbit connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max", c.maxRetries),
			zap.Error(err),
		)

		if attempt == c.maxRetries {
			break
		}

		select {
		case <-c.stop:
			return ConnClosedError{}
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}

	return ConnectionError{Attempts: c.maxRetries, Err: lastErr}
}

// ensure re-dials when the connection is absent or closed. It is the
// self-healing precondition called before every public operation.
func (c *Con) ensure() error {
	select {
	case <-c.stop:
		return ConnClosedError{}
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connection != nil && !c.connection.IsClosed() {
		return nil
	}

	c.log.Warn("rabbit connection absent or closed, redialing")

	return c.connect()
}

// alive reports whether the physical connection is currently usable.
func (c *Con) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connection != nil && !c.connection.IsClosed()
}

// channel ensures connection liveness and opens a fresh AMQP channel.
func (c *Con) channel() (*amqp091.Channel, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	con := c.connection
	c.mu.Unlock()

	ch, err := con.Channel()
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	return ch, nil
}

// declareTopology declares the exchange, the main queue with dead-letter
// arguments, the dead-letter exchange and the dead-letter queue, plus both
// bindings. Declaration is idempotent: repeating it with the same arguments
// never errors. Callers must hold mu and a live connection.
func (c *Con) declareTopology() error {
	ch, err := c.connection.Channel()
	if err != nil {
		return fmt.Errorf("create topology channel: %w", err)
	}

	defer func() {
		if err := ch.Close(); err != nil {
			c.log.Debug("close topology channel", zap.Error(err))
		}
	}()

	if err = ch.ExchangeDeclare(c.top.Exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if err = ch.ExchangeDeclare(c.top.DeadLetterExchange(), amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	if _, err = ch.QueueDeclare(c.top.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if err = ch.QueueBind(c.top.DeadLetterQueue(), c.top.Queue, c.top.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	// Rejecting a delivery without requeue on this queue routes it to the DLQ.
	if _, err = ch.QueueDeclare(c.top.Queue, true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    c.top.DeadLetterExchange(),
		"x-dead-letter-routing-key": c.top.Queue,
	}); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err = ch.QueueBind(c.top.Queue, c.top.Queue, c.top.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Topology returns the names declared by this connection.
func (c *Con) Topology() Topology {
	return c.top
}

// DeleteExchange removes an existing exchange by name.
func (c *Con) DeleteExchange(name string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	defer func() {
		if err := ch.Close(); err != nil {
			c.log.Debug("close channel", zap.Error(err))
		}
	}()

	if err = ch.ExchangeDelete(name, false, false); err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}

	return nil
}

// DeleteQueue removes an existing queue by name.
func (c *Con) DeleteQueue(name string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	defer func() {
		if err := ch.Close(); err != nil {
			c.log.Debug("close channel", zap.Error(err))
		}
	}()

	if _, err = ch.QueueDelete(name, false, false, false); err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}

	return nil
}

// CreateConsumer returns a new broker.Consumer instance or an error ConsumerConfEmptyError if the configuration is nil.
func (c *Con) CreateConsumer(cfg *ConsumerConfig) (broker.Consumer, error) {
	if cfg == nil {
		return nil, ConsumerConfEmptyError{}
	}

	return newConsumer(c, *cfg)
}

// CreatePublisher returns a new broker.Publisher instance or an error PublisherConfEmptyError if the configuration is nil.
func (c *Con) CreatePublisher(cfg *PublisherConfig) (broker.Publisher, error) {
	if cfg == nil {
		return nil, PublisherConfEmptyError{}
	}

	return newPublisher(c, *cfg, false)
}

// CreatePublisherWithConfirmation returns a broker.Publisher whose channel
// runs in confirm mode: every publish blocks until the broker acknowledges it.
func (c *Con) CreatePublisherWithConfirmation(cfg *PublisherConfig) (broker.Publisher, error) {
	if cfg == nil {
		return nil, PublisherConfEmptyError{}
	}

	return newPublisher(c, *cfg, true)
}

// CreateRequester returns a correlated request/response client bound to the
// connection's topology, or an error RequesterConfEmptyError if the
// configuration is nil.
func (c *Con) CreateRequester(cfg *RequesterConfig) (broker.Requester, error) {
	if cfg == nil {
		return nil, RequesterConfEmptyError{}
	}

	return newRequester(c, *cfg)
}

// Close gracefully shuts down the connection, waiting for in-flight
// operations to finish before closing.
func (c *Con) Close() error {
	close(c.stop)

	c.cons.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connection == nil || c.connection.IsClosed() {
		return nil
	}

	if err := c.connection.Close(); err != nil {
		return fmt.Errorf("close connection error: %w", err)
	}

	return nil
}
