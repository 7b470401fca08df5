package chat

import "fmt"

// Error codes surfaced in the HTTP error envelope.
const (
	CodeTopicNotFound  = "WIKIPEDIA_NOT_FOUND"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeRateLimit      = "RATE_LIMIT_ERROR"
	CodeOpenAIAPI      = "OPENAI_API_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// TopicNotFoundError signals that a topic has no Wikipedia page.
type TopicNotFoundError struct {
	Topic string
}

func (e TopicNotFoundError) Error() string {
	return fmt.Sprintf("topic %q not found on Wikipedia", e.Topic)
}

// OpenAIError wraps a failed model API call with the code the HTTP layer
// maps to a status.
type OpenAIError struct {
	Code    string
	Message string
}

func (e OpenAIError) Error() string {
	return fmt.Sprintf("openai: %s (%s)", e.Message, e.Code)
}
