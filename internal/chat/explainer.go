// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/askwiki/wikichat/internal/events"

	"go.uber.org/zap"
)

// TopicLLM is the slice of the model client the synchronous flow needs.
type TopicLLM interface {
	ExtractTopic(ctx context.Context, question string) (string, error)
	ExplainTopic(ctx context.Context, topic, wikipediaContent string) (string, error)
}

// TopicSearcher resolves a topic to a Wikipedia page.
type TopicSearcher interface {
	Search(ctx context.Context, topic string) (*Page, error)
}

// Explanation is the outcome of the synchronous explain flow.
type Explanation struct {
	Message   string
	RequestID string
}

// Explainer drives the synchronous explanation pipeline behind POST
// /api/chat: extract the topic, fetch the article, explain it, and emit an
// audit event for every transition.
type Explainer struct {
	llm      TopicLLM
	wiki     TopicSearcher
	producer *events.Producer
	log      *zap.Logger
}

// NewExplainer wires the synchronous explain flow.
func NewExplainer(llm TopicLLM, wiki TopicSearcher, producer *events.Producer, log *zap.Logger) *Explainer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Explainer{
		llm:      llm,
		wiki:     wiki,
		producer: producer,
		log:      log,
	}
}

// Explain answers a question about a topic with verifiable sources appended.
// A topic with no Wikipedia page fails with TopicNotFoundError. Audit event
// publication is best-effort and never fails the flow.
func (e *Explainer) Explain(ctx context.Context, requestID, question, sessionID string) (*Explanation, error) {
	topic, err := e.llm.ExtractTopic(ctx, question)
	if err != nil {
		return nil, err
	}

	e.log.Info("extracted topic",
		zap.String("topic", topic),
		zap.String("request_id", requestID),
	)

	if err := e.producer.ExplanationRequested(ctx, requestID, topic, sessionID); err != nil {
		e.log.Error("publish audit event", zap.Error(err))
	}

	page, err := e.wiki.Search(ctx, topic)
	if err != nil {
		return nil, err
	}

	if page == nil || page.Extract == "" {
		if err := e.producer.ExplanationFailed(ctx, requestID, topic, CodeTopicNotFound); err != nil {
			e.log.Error("publish audit event", zap.Error(err))
		}

		return nil, TopicNotFoundError{Topic: topic}
	}

	explanation, err := e.llm.ExplainTopic(ctx, topic, page.Extract)
	if err != nil {
		if perr := e.producer.ExplanationFailed(ctx, requestID, topic, err.Error()); perr != nil {
			e.log.Error("publish audit event", zap.Error(perr))
		}

		return nil, err
	}

	sources := []events.Source{{Title: page.Title, URL: page.URL}}

	if err := e.producer.ExplanationCompleted(ctx, requestID, topic, explanation, sources); err != nil {
		e.log.Error("publish audit event", zap.Error(err))
	}

	return &Explanation{
		Message:   withSources(explanation, sources),
		RequestID: requestID,
	}, nil
}

// withSources appends the verifiable source list to the explanation.
func withSources(explanation string, sources []events.Source) string {
	if len(sources) == 0 {
		return explanation
	}

	var b strings.Builder

	b.WriteString(explanation)
	b.WriteString("\n\nFuentes verificables:")

	for _, s := range sources {
		b.WriteString(fmt.Sprintf("\n- %s: %s", s.Title, s.URL))
	}

	return b.String()
}
