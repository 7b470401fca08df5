// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package chat

import (
	"context"
	"fmt"

	"github.com/askwiki/wikichat/pkg/broker"

	"go.uber.org/zap"
)

// LLM is the slice of the model client the worker handler needs.
type LLM interface {
	WikipediaURL(ctx context.Context, question string) (string, error)
	Answer(ctx context.Context, question, wikipediaContent, sourceURL string) (string, error)
}

// ContentFetcher resolves a Wikipedia URL to article text.
type ContentFetcher interface {
	ContentFromURL(ctx context.Context, pageURL string) (string, error)
}

// Handler answers chat questions pulled off the queue. Pipeline failures
// (model or Wikipedia) produce an error response for the waiting caller and
// count as handled; only a failure to deliver the response is reported
// upward, where the consumer loop's retry policy takes over. Responses
// round-robined to this worker are handed back with broker.RequeueError so
// the waiting caller sees them. The handler is safe to re-invoke with the
// same payload.
type Handler struct {
	llm     LLM
	wiki    ContentFetcher
	replies broker.Publisher // main exchange, legacy single-queue reply path
	direct  broker.Publisher // default exchange, used when the request names a reply queue
	log     *zap.Logger
}

// NewHandler wires the worker-side question handler.
func NewHandler(llm LLM, wiki ContentFetcher, replies, direct broker.Publisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return &Handler{
		llm:     llm,
		wiki:    wiki,
		replies: replies,
		direct:  direct,
		log:     log,
	}
}

// HandleQuestion processes one decoded queue event.
func (h *Handler) HandleQuestion(ctx context.Context, evt broker.Event, msg broker.Message) error {
	question := evt.String("message")
	if question == "" {
		// Not a chat request; nothing to answer.
		return nil
	}

	if evt.String("correlation_id") != "" {
		// Responses embed the correlation id in the body. The broker
		// round-robins the shared queue between this worker and the waiting
		// requesters, so a response must go back for its caller, not be
		// consumed here.
		return broker.RequeueError{}
	}

	userID := evt.String("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	corrID := msg.CorrelationID()
	if corrID == "" {
		corrID = "unknown"
	}

	h.log.Info("question received",
		zap.String("user_id", userID),
		zap.String("correlation_id", corrID),
		zap.Int("retry", msg.RetryCount()),
	)

	response := h.answer(ctx, question, userID, corrID)

	return h.respond(ctx, msg, corrID, response)
}

// answer runs the question pipeline and always yields a response event, even
// for pipeline failures.
func (h *Handler) answer(ctx context.Context, question, userID, corrID string) broker.Event {
	pageURL, err := h.llm.WikipediaURL(ctx, question)
	if err != nil {
		return h.errorResponse(userID, corrID, err)
	}

	content, err := h.wiki.ContentFromURL(ctx, pageURL)
	if err != nil {
		return h.errorResponse(userID, corrID, err)
	}

	if content == "" {
		h.log.Warn("no wikipedia content found", zap.String("url", pageURL))

		return broker.Event{
			"message":        fmt.Sprintf("No se pudo obtener información de Wikipedia para: %s", pageURL),
			"user_id":        userID,
			"correlation_id": corrID,
		}
	}

	answer, err := h.llm.Answer(ctx, question, content, pageURL)
	if err != nil {
		return h.errorResponse(userID, corrID, err)
	}

	return broker.Event{
		"message":        answer,
		"user_id":        userID,
		"correlation_id": corrID,
	}
}

func (h *Handler) errorResponse(userID, corrID string, cause error) broker.Event {
	h.log.Error("question pipeline failed",
		zap.String("user_id", userID),
		zap.String("correlation_id", corrID),
		zap.Error(cause),
	)

	return broker.Event{
		"message":        fmt.Sprintf("Error procesando la pregunta: %v", cause),
		"error":          cause.Error(),
		"user_id":        userID,
		"correlation_id": corrID,
	}
}

// respond delivers the response either straight to the caller's reply queue
// or, absent one, back onto the shared queue where the caller's transient
// consumer filters it out by correlation id.
func (h *Handler) respond(ctx context.Context, msg broker.Message, corrID string, response broker.Event) error {
	if replyTo := msg.ReplyTo(); replyTo != "" {
		return h.direct.PublishEvent(ctx, response,
			broker.WithRoutingKey(replyTo),
			broker.WithCorrelationID(corrID),
		)
	}

	return h.replies.PublishEvent(ctx, response, broker.WithCorrelationID(corrID))
}
