package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/taskjournal/llm"
	_ "github.com/c360studio/taskjournal/llm/providers" // Register providers
	"github.com/c360studio/taskjournal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) llm.ClientOption {
	return llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts: attempts,
		BackoffBase: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	})
}

func writeCompletion(w http.ResponseWriter, modelName, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": modelName,
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18},
	})
}

func singleEndpointRegistry(provider, url string) *model.Registry {
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityClassification: {Preferred: []string{"test-model"}},
		},
		map[string]*model.EndpointConfig{
			"test-model": {Provider: provider, URL: url, Model: "test-model"},
		},
	)
}

func classificationRequest() llm.Request {
	return llm.Request{
		Capability: "classification",
		Messages:   []llm.Message{{Role: "user", Content: "Call John tomorrow"}},
		JSONMode:   true,
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		writeCompletion(w, "test-model", `{"name":"Call John"}`)
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry("ollama", server.URL))

	resp, err := client.Complete(context.Background(), classificationRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Call John"}`, resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			writeCompletion(w, "test-model", "ok")
		}
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry("ollama", server.URL), fastRetry(3))

	resp, err := client.Complete(context.Background(), classificationRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_SingleAttempt(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry("ollama", server.URL), llm.WithRetryConfig(llm.SingleAttempt()))

	_, err := client.Complete(context.Background(), classificationRequest())
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_NoRetryOnFatalError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Invalid API key"))
	}))
	defer server.Close()

	registry := singleEndpointRegistry("ollama", server.URL)
	client := llm.NewClient(registry, fastRetry(3))

	_, err := client.Complete(context.Background(), classificationRequest())
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Equal(t, int32(1), attempts.Load())
	assert.True(t, registry.IsEndpointAvailable("test-model"), "fatal errors must not trip the breaker")
}

func TestClient_Complete_MissingCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry("openai", server.URL), fastRetry(3))

	_, err := client.Complete(context.Background(), classificationRequest())
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.True(t, errors.Is(err, llm.ErrMissingCredentials))
	assert.Zero(t, attempts.Load())
}

func TestClient_Complete_Fallback(t *testing.T) {
	var primaryAttempts, fallbackAttempts atomic.Int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryAttempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackAttempts.Add(1)
		writeCompletion(w, "fallback-model", "From fallback")
	}))
	defer fallback.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityClassification: {
				Preferred: []string{"primary"},
				Fallback:  []string{"fallback"},
			},
		},
		map[string]*model.EndpointConfig{
			"primary":  {Provider: "ollama", URL: primary.URL, Model: "primary-model"},
			"fallback": {Provider: "ollama", URL: fallback.URL, Model: "fallback-model"},
		},
	)

	client := llm.NewClient(registry, fastRetry(2))

	resp, err := client.Complete(context.Background(), classificationRequest())
	require.NoError(t, err)
	assert.Equal(t, "From fallback", resp.Content)
	assert.Equal(t, int32(2), primaryAttempts.Load())
	assert.Equal(t, int32(1), fallbackAttempts.Load())

	health := registry.GetEndpointHealth("primary")
	require.NotNil(t, health)
	assert.Equal(t, 1, health.FailureCount)
}

func TestClient_Complete_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry("ollama", server.URL), fastRetry(3))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, classificationRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}

func TestClient_Complete_ValidationErrors(t *testing.T) {
	client := llm.NewClient(model.NewDefaultRegistry())

	tests := []struct {
		name    string
		req     llm.Request
		wantErr string
	}{
		{
			name:    "empty capability",
			req:     llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}},
			wantErr: "capability is required",
		},
		{
			name:    "no messages",
			req:     llm.Request{Capability: "classification"},
			wantErr: "at least one message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, llm.IsFatal(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_Complete_NoEndpoints(t *testing.T) {
	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityClassification: {Preferred: []string{"ghost"}},
		},
		nil,
	)
	client := llm.NewClient(registry)

	_, err := client.Complete(context.Background(), classificationRequest())
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
}
