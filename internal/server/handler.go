// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/askwiki/wikichat/internal/chat"
	"github.com/askwiki/wikichat/internal/server/response"
	"github.com/askwiki/wikichat/pkg/adapter"
	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Explainer is the synchronous explanation flow behind POST /api/chat.
type Explainer interface {
	Explain(ctx context.Context, requestID, question, sessionID string) (*chat.Explanation, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question  string `json:"question" binding:"required,min=1,max=500"`
	SessionID string `json:"session_id"`
}

// ChatResponse answers POST /api/chat.
type ChatResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// WikipediaRequest is the body of POST /api/chat/wikipedia.
type WikipediaRequest struct {
	Message string `json:"message" binding:"required,min=1,max=500"`
}

// WikipediaResponse answers POST /api/chat/wikipedia.
type WikipediaResponse struct {
	Message string `json:"message"`
}

// ChatHandler exposes the chatbot over HTTP.
type ChatHandler struct {
	explainer Explainer
	requester broker.Requester
	timeout   time.Duration
	log       *zap.Logger
}

// NewChatHandler wires the HTTP handlers. timeout bounds the queue
// round-trip of the wikipedia endpoint.
func NewChatHandler(explainer Explainer, requester broker.Requester, timeout time.Duration, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &ChatHandler{
		explainer: explainer,
		requester: requester,
		timeout:   timeout,
		log:       log,
	}
}

// Chat answers a question synchronously: topic extraction, Wikipedia lookup
// and explanation, with audit events emitted along the way.
func (h *ChatHandler) Chat(c *gin.Context) {
	requestID := requestID(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)

		return
	}

	h.log.Info("chat request received",
		zap.String("request_id", requestID),
		zap.String("question", req.Question),
	)

	explanation, err := h.explainer.Explain(c.Request.Context(), requestID, req.Question, req.SessionID)
	if err != nil {
		h.explainError(c, requestID, err)

		return
	}

	response.Success(c, ChatResponse{
		Message:   explanation.Message,
		RequestID: explanation.RequestID,
	})
}

// ChatWikipedia publishes the question to the work queue and blocks until
// the worker's answer arrives or the timeout elapses.
func (h *ChatHandler) ChatWikipedia(c *gin.Context) {
	requestID := requestID(c)

	var req WikipediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)

		return
	}

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}

	answer, err := h.requester.Request(c.Request.Context(), broker.Event{
		"user_id": userID,
		"message": req.Message,
	}, h.timeout)
	if err != nil {
		var timeout adapter.TimeoutError
		if errors.As(err, &timeout) {
			response.Error(c, http.StatusGatewayTimeout, "TIMEOUT",
				"no response within the configured timeout", requestID)

			return
		}

		h.log.Error("queue round-trip failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		response.Error(c, http.StatusServiceUnavailable, "RABBITMQ_ERROR", err.Error(), requestID)

		return
	}

	response.Success(c, WikipediaResponse{
		Message: answer.String("message"),
	})
}

func (h *ChatHandler) explainError(c *gin.Context, requestID string, err error) {
	var (
		notFound  chat.TopicNotFoundError
		openaiErr chat.OpenAIError
	)

	switch {
	case errors.As(err, &notFound):
		response.Error(c, http.StatusBadRequest, chat.CodeTopicNotFound, err.Error(), requestID)
	case errors.As(err, &openaiErr):
		status := http.StatusInternalServerError
		if openaiErr.Code == chat.CodeOpenAIAPI {
			status = http.StatusServiceUnavailable
		}

		response.Error(c, status, openaiErr.Code, openaiErr.Message, requestID)
	default:
		h.log.Error("chat request failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, chat.CodeInternal,
			"An unexpected error occurred", requestID)
	}
}

func requestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}

	return uuid.NewString()
}
