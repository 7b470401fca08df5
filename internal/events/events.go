// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package events

import (
	"context"
	"time"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Audit event types emitted around every explanation.
const (
	TypeExplanationRequested = "EXPLANATION_REQUESTED"
	TypeExplanationCompleted = "EXPLANATION_COMPLETED"
	TypeExplanationFailed    = "EXPLANATION_FAILED"
)

// Source is one Wikipedia article backing an explanation.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Producer publishes audit events describing the explanation lifecycle.
// It is meant to run over a confirm-mode publisher so the audit trail is not
// lost to a silently dropped delivery.
type Producer struct {
	pub broker.Publisher
	log *zap.Logger
}

// NewProducer wires a producer to a publisher. A nil logger falls back to a
// nop logger.
func NewProducer(pub broker.Publisher, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Producer{pub: pub, log: log}
}

// ExplanationRequested emits the event marking the start of an explanation.
func (p *Producer) ExplanationRequested(ctx context.Context, requestID, topic, sessionID string) error {
	evt := newEvent(TypeExplanationRequested, requestID, topic, "pending")
	if sessionID != "" {
		evt["session_id"] = sessionID
	}

	if err := p.pub.PublishEvent(ctx, evt); err != nil {
		return err
	}

	p.log.Info("published audit event",
		zap.String("event_type", TypeExplanationRequested),
		zap.String("topic", topic),
	)

	return nil
}

// ExplanationCompleted emits the event carrying the finished explanation and
// its sources.
func (p *Producer) ExplanationCompleted(ctx context.Context, requestID, topic, explanation string, sources []Source) error {
	evt := newEvent(TypeExplanationCompleted, requestID, topic, "completed")
	evt["data"] = map[string]interface{}{
		"explanation": explanation,
		"sources":     sources,
	}

	if err := p.pub.PublishEvent(ctx, evt); err != nil {
		return err
	}

	p.log.Info("published audit event",
		zap.String("event_type", TypeExplanationCompleted),
		zap.String("topic", topic),
	)

	return nil
}

// ExplanationFailed emits the event recording a failed explanation.
func (p *Producer) ExplanationFailed(ctx context.Context, requestID, topic, cause string) error {
	evt := newEvent(TypeExplanationFailed, requestID, topic, "failed")
	evt["data"] = map[string]interface{}{
		"error": cause,
	}

	if err := p.pub.PublishEvent(ctx, evt); err != nil {
		return err
	}

	p.log.Error("published audit event",
		zap.String("event_type", TypeExplanationFailed),
		zap.String("topic", topic),
		zap.String("error", cause),
	)

	return nil
}

func newEvent(eventType, requestID, topic, status string) broker.Event {
	return broker.Event{
		"event_id":   uuid.NewString(),
		"request_id": requestID,
		"event_type": eventType,
		"topic":      topic,
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
}
