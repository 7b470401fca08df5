// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the error payload every failed request returns.
type Envelope struct {
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Success writes a 200 with the given payload.
func Success(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Error writes the standard error envelope.
func Error(c *gin.Context, status int, code, message, requestID string) {
	c.JSON(status, Envelope{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}
