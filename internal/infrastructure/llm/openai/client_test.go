package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(" ", "", "gpt-4o-mini", "text-embedding-3-small")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestGeneratorCompleteSendsHistoryAndJSONFormat(t *testing.T) {
	var body struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" onboarding_flow "}}]}`))
	}))
	defer server.Close()

	client, err := New("test-key", server.URL, "gpt-4o-mini", "text-embedding-3-small")
	require.NoError(t, err)

	out, err := NewGenerator(client).Complete(context.Background(), domain.CompletionRequest{
		System:  "classify",
		History: []domain.ConversationTurn{{Role: domain.RoleAssistant, Text: "Welcome!"}},
		User:    "hi",
		JSON:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "onboarding_flow", out)
	assert.Equal(t, "gpt-4o-mini", body.Model)
	assert.Equal(t, "json_object", body.ResponseFormat.Type)
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Equal(t, "hi", body.Messages[2].Content)
}

func TestEmbedderOrdersVectorsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0.5,0.5]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer server.Close()

	client, err := New("test-key", server.URL, "gpt-4o-mini", "text-embedding-3-small")
	require.NoError(t, err)

	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0.5, 0.5}, vectors[1])
}

func TestGeneratorMarksServerErrorsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := New("test-key", server.URL, "gpt-4o-mini", "text-embedding-3-small")
	require.NoError(t, err)

	_, err = NewGenerator(client).Complete(context.Background(), domain.CompletionRequest{User: "hi"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
}
