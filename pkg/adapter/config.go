// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package adapter

import (
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const mimeReadLimit = 512 //bytes that mime will read

// RetryCountHeader carries the handler retry counter in message metadata.
// Absent means zero.
const RetryCountHeader = "x-retry-count"

// Default topology names of the chatbot deployment.
const (
	DefaultExchange = "wikipedia_chatbot_exchange"
	DefaultQueue    = "wikipedia_chatbot_queue"
)

const (
	defaultMaxRetries   = 3
	defaultPollInterval = time.Second
)

// ReplyMode selects how the Requester receives responses.
type ReplyMode string

const (
	// ReplyModeFilter consumes the main queue and requeues everything that
	// does not match the call's correlation id. Legacy behavior: every
	// outstanding waiter observes and requeues every non-matching message.
	ReplyModeFilter ReplyMode = "filter"
	// ReplyModeExclusive declares a transient exclusive reply queue per call
	// and asks responders to answer there directly.
	ReplyModeExclusive ReplyMode = "exclusive"
)

// Client configures the broker connection.
type Client struct {
	Username         string        `env:"USERNAME" yaml:"-"`
	Password         string        `env:"PASSWORD" yaml:"-"`
	Host             string        `env:"HOST" yaml:"host"`
	Port             int           `env:"PORT" yaml:"port"`
	VHost            string        `env:"VHOST" yaml:"vhost"`
	TcpHeartBeat     time.Duration `env:"HEARTBEAT" yaml:"tcp_heartbeat"`
	Properties       amqp091.Table `env:"PROPERTIES" yaml:"properties"`
	MaxRetries       int           `env:"MAX_RETRIES" yaml:"max_retries"`
	Topology         Topology      `yaml:"topology"`
}

// Topology names the durable objects declared on every connection
// establishment: the main exchange and queue plus their dead-letter twins.
type Topology struct {
	Exchange string `env:"EXCHANGE" yaml:"exchange"`
	Queue    string `env:"QUEUE" yaml:"queue"`
}

// DeadLetterExchange returns the name of the dead-letter exchange.
func (t Topology) DeadLetterExchange() string {
	return t.Exchange + "_dlx"
}

// DeadLetterQueue returns the name of the dead-letter queue.
func (t Topology) DeadLetterQueue() string {
	return t.Queue + "_dlq"
}

func (t Topology) orDefaults() Topology {
	if t.Exchange == "" {
		t.Exchange = DefaultExchange
	}

	if t.Queue == "" {
		t.Queue = DefaultQueue
	}

	return t
}

// ConsumerConfig configures a queue consumer.
// A zero Prefetch means one unacknowledged delivery at a time.
type ConsumerConfig struct {
	QueueName string        `env:"QUEUE" yaml:"queue"`
	Prefetch  int           `env:"PREFETCH" yaml:"prefetch"`
	Args      amqp091.Table `env:"ARGS" yaml:"args"`
}

// PublisherConfig configures a publisher.
// An empty ExchangeName publishes through the default exchange, which routes
// directly to the queue named by the routing key.
type PublisherConfig struct {
	ExchangeName string `env:"EXCHANGE" yaml:"exchange"`
	RoutingKey   string `env:"ROUTING" yaml:"routing_key"`
	AppId        string `env:"APP_ID" yaml:"app_id"`
}

// RequesterConfig configures the correlated request/response client.
type RequesterConfig struct {
	ExchangeName string        `env:"EXCHANGE" yaml:"exchange"`
	RoutingKey   string        `env:"ROUTING" yaml:"routing_key"`
	QueueName    string        `env:"QUEUE" yaml:"queue"`
	Mode         ReplyMode     `env:"MODE" yaml:"mode"`
	PollInterval time.Duration `env:"POLL" yaml:"poll_interval"`
}
