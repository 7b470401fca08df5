// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package cmd

import (
	"fmt"

	"github.com/askwiki/wikichat/internal/chat"
	"github.com/askwiki/wikichat/internal/config"
	"github.com/askwiki/wikichat/internal/logger"
	"github.com/askwiki/wikichat/pkg/adapter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "wikichat",
	Short: "Wikipedia chatbot service over RabbitMQ",
	Long: `wikichat answers questions about Wikipedia topics using a language model.

The serve subcommand runs the HTTP API; the worker subcommand runs the
background consumer that answers queued questions.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// bootstrap loads the configuration and builds the logger every subcommand
// starts from.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, log, nil
}

// dial connects to the broker with the configured bounded-retry policy.
func dial(cfg *config.Config, log *zap.Logger) (*adapter.Con, error) {
	return adapter.Dial(&adapter.Client{
		Username:   cfg.Rabbit.User,
		Password:   cfg.Rabbit.Password,
		Host:       cfg.Rabbit.Host,
		Port:       cfg.Rabbit.Port,
		VHost:      cfg.Rabbit.VHost,
		MaxRetries: cfg.Rabbit.MaxRetries,
		Topology: adapter.Topology{
			Exchange: cfg.Rabbit.Exchange,
			Queue:    cfg.Rabbit.Queue,
		},
	}, log)
}

func newLLM(cfg *config.Config) *chat.OpenAI {
	return chat.NewOpenAI(chat.OpenAIOptions{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	})
}
