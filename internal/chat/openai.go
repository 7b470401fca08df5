// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures the chat-completions client.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OpenAI is a minimal chat-completions client covering the three prompts the
// chatbot needs: topic extraction, Wikipedia URL selection and answer
// generation.
type OpenAI struct {
	opts   OpenAIOptions
	client *http.Client
}

// NewOpenAI builds a client with a 60 second request timeout.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}

	return &OpenAI{
		opts:   opts,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExtractTopic reduces a user question to its 1-3 word main topic.
func (c *OpenAI) ExtractTopic(ctx context.Context, question string) (string, error) {
	return c.complete(ctx,
		"Eres un asistente que extrae temas de preguntas. Extrae SOLO el tema principal en 1-3 palabras. Responde SOLO con el tema, sin explicación.",
		fmt.Sprintf("Pregunta: %s\n\nTema:", question),
	)
}

// WikipediaURL asks the model for the single Wikipedia article URL best
// matching the question.
func (c *OpenAI) WikipediaURL(ctx context.Context, question string) (string, error) {
	return c.complete(ctx,
		"Eres un asistente que identifica artículos de Wikipedia. Responde SOLO con la URL completa del artículo de Wikipedia en español más relevante para la pregunta, sin explicación.",
		fmt.Sprintf("Pregunta: %s\n\nURL:", question),
	)
}

// ExplainTopic explains a topic using only the supplied Wikipedia content.
func (c *OpenAI) ExplainTopic(ctx context.Context, topic, wikipediaContent string) (string, error) {
	return c.complete(ctx,
		"Eres un asistente educativo que explica conceptos de forma clara y sencilla.",
		buildExplainPrompt(topic, wikipediaContent),
	)
}

// Answer answers a question grounded on Wikipedia content, citing the source.
func (c *OpenAI) Answer(ctx context.Context, question, wikipediaContent, sourceURL string) (string, error) {
	return c.complete(ctx,
		"Eres un asistente que responde preguntas usando EXCLUSIVAMENTE la información de Wikipedia proporcionada. Cita la fuente al final de la respuesta.",
		fmt.Sprintf("Pregunta: %s\n\nInformación de Wikipedia (%s):\n%s\n\nRespuesta:",
			question, sourceURL, truncate(wikipediaContent, 2000)),
	)
}

// buildExplainPrompt keeps the explanation grounded on the provided text.
func buildExplainPrompt(topic, wikipediaContent string) string {
	return fmt.Sprintf(`
Basándote EXCLUSIVAMENTE en la siguiente información de Wikipedia,
explícame de forma sencilla qué es %s.

Información de Wikipedia:
%s

Por favor:
1. Usa un lenguaje simple y comprensible
2. Mantén la explicación breve (máximo 3 párrafos)
3. No agregues información que no esté en el texto proporcionado
4. Si la información no es suficiente, indícalo
`, topic, truncate(wikipediaContent, 2000))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", OpenAIError{Code: CodeOpenAIAPI, Message: err.Error()}
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", OpenAIError{Code: CodeOpenAIAPI, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", OpenAIError{Code: CodeAuthentication, Message: apiMessage(parsed)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", OpenAIError{Code: CodeRateLimit, Message: apiMessage(parsed)}
	case resp.StatusCode != http.StatusOK:
		return "", OpenAIError{Code: CodeOpenAIAPI, Message: apiMessage(parsed)}
	}

	if len(parsed.Choices) == 0 {
		return "", OpenAIError{Code: CodeOpenAIAPI, Message: "empty completion"}
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func apiMessage(r chatResponse) string {
	if r.Error != nil {
		return r.Error.Message
	}

	return "unexpected response"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
