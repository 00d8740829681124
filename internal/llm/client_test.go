package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"{\"score\":0.4}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	resp, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Contains(t, resp.Choices[0].Message.Content, "score")
}

func TestClient_Complete_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable)
}

func TestClient_Complete_BadRequestIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable)
}

func TestClient_ParseJSONResponse_ExtractsFromMarkdownFence(t *testing.T) {
	client := NewClient(ClientConfig{Endpoint: "http://unused"})
	var out struct {
		Score float64 `json:"score"`
	}
	err := client.ParseJSONResponse("here is my answer:\n```json\n{\"score\": 0.7}\n```\nthanks", &out)
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.Score)
}

func TestClient_ParseJSONResponse_ExtractsBareObject(t *testing.T) {
	client := NewClient(ClientConfig{Endpoint: "http://unused"})
	var out struct {
		Score float64 `json:"score"`
	}
	err := client.ParseJSONResponse(`some preamble {"score": -0.3} trailing text`, &out)
	require.NoError(t, err)
	assert.Equal(t, -0.3, out.Score)
}

func TestClient_ParseJSONResponse_NoJSONReturnsError(t *testing.T) {
	client := NewClient(ClientConfig{Endpoint: "http://unused"})
	var out struct{}
	err := client.ParseJSONResponse("no json here at all", &out)
	require.Error(t, err)
}
