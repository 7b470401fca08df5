// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from config.yaml with
// environment variable overrides (dots become underscores, e.g.
// RABBIT_PASSWORD overrides rabbit.password).
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Rabbit RabbitConfig `mapstructure:"rabbit"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Wiki   WikiConfig   `mapstructure:"wiki"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`
}

type RabbitConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	VHost          string        `mapstructure:"vhost"`
	Exchange       string        `mapstructure:"exchange"`
	Queue          string        `mapstructure:"queue"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReplyMode      string        `mapstructure:"reply_mode"` // "filter" or "exclusive"
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type WikiConfig struct {
	Lang string `mapstructure:"lang"`
}

// Load reads configuration from the working directory and the environment.
// A missing config file is not an error; defaults and environment variables
// cover everything except secrets.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8000")
	v.SetDefault("app.log_level", "info")

	// Empty defaults keep the keys visible to Unmarshal, so environment
	// overrides apply even without a config file.
	v.SetDefault("rabbit.vhost", "")
	v.SetDefault("openai.api_key", "")

	v.SetDefault("rabbit.host", "localhost")
	v.SetDefault("rabbit.port", 5672)
	v.SetDefault("rabbit.user", "guest")
	v.SetDefault("rabbit.password", "guest")
	v.SetDefault("rabbit.exchange", "wikipedia_chatbot_exchange")
	v.SetDefault("rabbit.queue", "wikipedia_chatbot_queue")
	v.SetDefault("rabbit.max_retries", 3)
	v.SetDefault("rabbit.request_timeout", 30*time.Second)
	v.SetDefault("rabbit.reply_mode", "filter")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-5-mini")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 500)

	v.SetDefault("wiki.lang", "es")
}
