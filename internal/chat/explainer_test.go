package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/askwiki/wikichat/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTopicLLM struct {
	topic       string
	topicErr    error
	explanation string
	explainErr  error
}

func (f *fakeTopicLLM) ExtractTopic(_ context.Context, _ string) (string, error) {
	return f.topic, f.topicErr
}

func (f *fakeTopicLLM) ExplainTopic(_ context.Context, _, _ string) (string, error) {
	return f.explanation, f.explainErr
}

type fakeSearcher struct {
	page *Page
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) (*Page, error) {
	return f.page, f.err
}

func auditProducer() (*events.Producer, *capturePublisher) {
	pub := &capturePublisher{}
	return events.NewProducer(pub, nil), pub
}

func auditTypes(pub *capturePublisher) []string {
	types := make([]string, 0, len(pub.events))
	for _, evt := range pub.events {
		types = append(types, evt.String("event_type"))
	}

	return types
}

func TestExplainHappyPath(t *testing.T) {
	llm := &fakeTopicLLM{topic: "Go", explanation: "Go es un lenguaje compilado."}
	wiki := &fakeSearcher{page: &Page{
		Title:   "Go (lenguaje de programación)",
		URL:     "https://es.wikipedia.org/wiki/Go",
		Extract: "Go es un lenguaje...",
	}}
	producer, pub := auditProducer()

	out, err := NewExplainer(llm, wiki, producer, nil).Explain(
		context.Background(), "req-1", "que es go", "sess-1")

	require.NoError(t, err)
	assert.Equal(t, "req-1", out.RequestID)
	assert.Contains(t, out.Message, "Go es un lenguaje compilado.")
	assert.Contains(t, out.Message, "Fuentes verificables:")
	assert.Contains(t, out.Message, "https://es.wikipedia.org/wiki/Go")

	assert.Equal(t, []string{
		events.TypeExplanationRequested,
		events.TypeExplanationCompleted,
	}, auditTypes(pub))
}

func TestExplainTopicNotFound(t *testing.T) {
	llm := &fakeTopicLLM{topic: "Xyzzy"}
	wiki := &fakeSearcher{page: nil}
	producer, pub := auditProducer()

	_, err := NewExplainer(llm, wiki, producer, nil).Explain(
		context.Background(), "req-2", "que es xyzzy", "")

	var notFound TopicNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Xyzzy", notFound.Topic)

	assert.Equal(t, []string{
		events.TypeExplanationRequested,
		events.TypeExplanationFailed,
	}, auditTypes(pub))
}

func TestExplainEmptyExtractIsNotFound(t *testing.T) {
	llm := &fakeTopicLLM{topic: "Stub"}
	wiki := &fakeSearcher{page: &Page{Title: "Stub"}}
	producer, _ := auditProducer()

	_, err := NewExplainer(llm, wiki, producer, nil).Explain(
		context.Background(), "req-3", "que es stub", "")

	var notFound TopicNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestExplainModelFailureEmitsFailedEvent(t *testing.T) {
	llm := &fakeTopicLLM{
		topic:      "Go",
		explainErr: OpenAIError{Code: CodeRateLimit, Message: "slow down"},
	}
	wiki := &fakeSearcher{page: &Page{Title: "Go", Extract: "texto"}}
	producer, pub := auditProducer()

	_, err := NewExplainer(llm, wiki, producer, nil).Explain(
		context.Background(), "req-4", "que es go", "")

	var apiErr OpenAIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeRateLimit, apiErr.Code)

	assert.Equal(t, []string{
		events.TypeExplanationRequested,
		events.TypeExplanationFailed,
	}, auditTypes(pub))
}

func TestExplainAuditFailureDoesNotFailFlow(t *testing.T) {
	llm := &fakeTopicLLM{topic: "Go", explanation: "explicación"}
	wiki := &fakeSearcher{page: &Page{Title: "Go", URL: "u", Extract: "texto"}}
	pub := &capturePublisher{err: errors.New("broker gone")}
	producer := events.NewProducer(pub, nil)

	out, err := NewExplainer(llm, wiki, producer, nil).Explain(
		context.Background(), "req-5", "que es go", "")

	require.NoError(t, err, "audit publication is best-effort")
	assert.Contains(t, out.Message, "explicación")
}
