package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, reply string) (*httptest.Server, *chatRequest) {
	t.Helper()

	var captured chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))

	t.Cleanup(srv.Close)

	return srv, &captured
}

func newTestOpenAI(baseURL string) *OpenAI {
	return NewOpenAI(OpenAIOptions{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-5-mini",
	})
}

func TestExtractTopic(t *testing.T) {
	srv, captured := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"  Lenguaje Go  "}}]}`)

	topic, err := newTestOpenAI(srv.URL).ExtractTopic(context.Background(), "¿Qué es el lenguaje Go?")

	require.NoError(t, err)
	assert.Equal(t, "Lenguaje Go", topic, "model output is trimmed")

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "¿Qué es el lenguaje Go?")
	assert.Equal(t, "gpt-5-mini", captured.Model)
}

func TestWikipediaURL(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"https://es.wikipedia.org/wiki/Go"}}]}`)

	url, err := newTestOpenAI(srv.URL).WikipediaURL(context.Background(), "que es go")

	require.NoError(t, err)
	assert.Equal(t, "https://es.wikipedia.org/wiki/Go", url)
}

func TestCompleteStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantCode: CodeAuthentication},
		{name: "rate limited", status: http.StatusTooManyRequests, wantCode: CodeRateLimit},
		{name: "server error", status: http.StatusInternalServerError, wantCode: CodeOpenAIAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := completionServer(t, tt.status, `{"error":{"message":"nope","type":"api_error"}}`)

			_, err := newTestOpenAI(srv.URL).ExtractTopic(context.Background(), "que es go")

			var apiErr OpenAIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Contains(t, apiErr.Message, "nope")
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, `{"choices":[]}`)

	_, err := newTestOpenAI(srv.URL).ExtractTopic(context.Background(), "que es go")

	var apiErr OpenAIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeOpenAIAPI, apiErr.Code)
}

func TestAnswerTruncatesContent(t *testing.T) {
	srv, captured := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"respuesta"}}]}`)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}

	_, err := newTestOpenAI(srv.URL).Answer(context.Background(), "que es go", string(long), "https://es.wikipedia.org/wiki/Go")

	require.NoError(t, err)
	assert.Less(t, len(captured.Messages[1].Content), 2500, "article text is capped before prompting")
}
