package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records every published event with its options.
type capturePublisher struct {
	events []broker.Event
	opts   []broker.PublishOptions
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, _ []byte, _ ...broker.PublishOption) error {
	return p.err
}

func (p *capturePublisher) PublishEvent(_ context.Context, evt broker.Event, opts ...broker.PublishOption) error {
	if p.err != nil {
		return p.err
	}

	p.events = append(p.events, evt)
	p.opts = append(p.opts, broker.ApplyPublishOptions(opts))

	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) last() (broker.Event, broker.PublishOptions) {
	return p.events[len(p.events)-1], p.opts[len(p.opts)-1]
}

// queueMessage is the slice of broker.Message the handler reads.
type queueMessage struct {
	corrID  string
	replyTo string
	retries int
}

func (m queueMessage) Headers() map[string]interface{} { return nil }
func (m queueMessage) ContentType() string             { return "application/json" }
func (m queueMessage) CorrelationID() string           { return m.corrID }
func (m queueMessage) ReplyTo() string                 { return m.replyTo }
func (m queueMessage) RetryCount() int                 { return m.retries }
func (m queueMessage) IsRedelivered() bool             { return false }
func (m queueMessage) Body() []byte                    { return nil }
func (m queueMessage) RoutingKey() string              { return "" }
func (m queueMessage) Ack() error                      { return nil }
func (m queueMessage) Nack() error                     { return nil }
func (m queueMessage) Reject() error                   { return nil }

type fakeLLM struct {
	url     string
	urlErr  error
	answer  string
	ansErr  error
	asked   string
	content string
}

func (f *fakeLLM) WikipediaURL(_ context.Context, question string) (string, error) {
	f.asked = question
	return f.url, f.urlErr
}

func (f *fakeLLM) Answer(_ context.Context, _, wikipediaContent, _ string) (string, error) {
	f.content = wikipediaContent
	return f.answer, f.ansErr
}

type fakeFetcher struct {
	content string
	err     error
	gotURL  string
}

func (f *fakeFetcher) ContentFromURL(_ context.Context, pageURL string) (string, error) {
	f.gotURL = pageURL
	return f.content, f.err
}

func TestHandleQuestionRepliesOnSharedQueue(t *testing.T) {
	llm := &fakeLLM{url: "https://es.wikipedia.org/wiki/Go", answer: "Go es un lenguaje."}
	wiki := &fakeFetcher{content: "Go es un lenguaje de programación."}
	replies := &capturePublisher{}
	direct := &capturePublisher{}

	h := NewHandler(llm, wiki, replies, direct, nil)

	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "que es go", "user_id": "u1"},
		queueMessage{corrID: "corr-1"},
	)

	require.NoError(t, err)
	require.Len(t, replies.events, 1)
	assert.Empty(t, direct.events)

	evt, opts := replies.last()
	assert.Equal(t, "Go es un lenguaje.", evt.String("message"))
	assert.Equal(t, "corr-1", evt.String("correlation_id"))
	assert.Equal(t, "u1", evt.String("user_id"))
	assert.Equal(t, "corr-1", opts.CorrelationID)
	assert.Equal(t, "https://es.wikipedia.org/wiki/Go", wiki.gotURL)
}

func TestHandleQuestionUsesReplyQueueWhenNamed(t *testing.T) {
	llm := &fakeLLM{url: "https://es.wikipedia.org/wiki/Go", answer: "respuesta"}
	wiki := &fakeFetcher{content: "contenido"}
	replies := &capturePublisher{}
	direct := &capturePublisher{}

	h := NewHandler(llm, wiki, replies, direct, nil)

	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "que es go"},
		queueMessage{corrID: "corr-2", replyTo: "wikichat.reply.ab12cd34"},
	)

	require.NoError(t, err)
	assert.Empty(t, replies.events)
	require.Len(t, direct.events, 1)

	_, opts := direct.last()
	assert.Equal(t, "wikichat.reply.ab12cd34", opts.RoutingKey)
	assert.Equal(t, "corr-2", opts.CorrelationID)
}

func TestHandleQuestionSkipsNonRequests(t *testing.T) {
	replies := &capturePublisher{}
	direct := &capturePublisher{}
	h := NewHandler(&fakeLLM{}, &fakeFetcher{}, replies, direct, nil)

	// No message field: not a chat request.
	require.NoError(t, h.HandleQuestion(context.Background(),
		broker.Event{"event_type": "something"}, queueMessage{}))

	assert.Empty(t, replies.events)
	assert.Empty(t, direct.events)
}

func TestHandleQuestionRequeuesResponses(t *testing.T) {
	replies := &capturePublisher{}
	direct := &capturePublisher{}
	h := NewHandler(&fakeLLM{}, &fakeFetcher{}, replies, direct, nil)

	// Body-level correlation id marks another caller's response; it must go
	// back on the queue, never be answered or consumed here.
	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "hola", "correlation_id": "corr-3"}, queueMessage{corrID: "corr-3"})

	assert.ErrorIs(t, err, broker.RequeueError{})
	assert.Empty(t, replies.events)
	assert.Empty(t, direct.events)
}

func TestHandleQuestionPipelineFailureAnswersWithError(t *testing.T) {
	llm := &fakeLLM{urlErr: errors.New("model down")}
	replies := &capturePublisher{}

	h := NewHandler(llm, &fakeFetcher{}, replies, &capturePublisher{}, nil)

	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "que es go"},
		queueMessage{corrID: "corr-4"},
	)

	// The caller still gets an answer; the delivery is not retried.
	require.NoError(t, err)
	require.Len(t, replies.events, 1)

	evt, _ := replies.last()
	assert.Contains(t, evt.String("message"), "Error procesando la pregunta")
	assert.Equal(t, "model down", evt.String("error"))
	assert.Equal(t, "corr-4", evt.String("correlation_id"))
	assert.Equal(t, "anonymous", evt.String("user_id"))
}

func TestHandleQuestionEmptyContentStillAnswers(t *testing.T) {
	llm := &fakeLLM{url: "https://es.wikipedia.org/wiki/Nada"}
	wiki := &fakeFetcher{content: ""}
	replies := &capturePublisher{}

	h := NewHandler(llm, wiki, replies, &capturePublisher{}, nil)

	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "que es nada"},
		queueMessage{corrID: "corr-5"},
	)

	require.NoError(t, err)
	require.Len(t, replies.events, 1)

	evt, _ := replies.last()
	assert.Contains(t, evt.String("message"), "No se pudo obtener información de Wikipedia")
}

func TestHandleQuestionRespondFailureIsRetryable(t *testing.T) {
	llm := &fakeLLM{url: "https://es.wikipedia.org/wiki/Go", answer: "respuesta"}
	wiki := &fakeFetcher{content: "contenido"}
	replies := &capturePublisher{err: errors.New("broker gone")}

	h := NewHandler(llm, wiki, replies, &capturePublisher{}, nil)

	err := h.HandleQuestion(context.Background(),
		broker.Event{"message": "que es go"},
		queueMessage{corrID: "corr-6"},
	)

	// Only response delivery failures surface to the retry policy.
	assert.Error(t, err)
}
