// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package server

import (
	"net/http"
	"time"

	"github.com/askwiki/wikichat/internal/server/response"

	"github.com/gin-gonic/gin"
)

// Version of the public API.
const Version = "v1"

// NewRouter builds the gin engine with all routes registered.
func NewRouter(handler *ChatHandler, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{
			"status":    "healthy",
			"version":   Version,
			"timestamp": time.Now().UTC(),
		})
	})

	api := r.Group("/api")
	{
		api.GET("/status", func(c *gin.Context) {
			response.Success(c, gin.H{
				"status":    "running",
				"version":   Version,
				"timestamp": time.Now().UTC(),
			})
		})

		api.GET("/versions", func(c *gin.Context) {
			response.Success(c, gin.H{
				"current_version":    Version,
				"available_versions": []string{Version},
			})
		})

		api.POST("/chat", handler.Chat)
		api.POST("/chat/wikipedia", handler.ChatWikipedia)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
