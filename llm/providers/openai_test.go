package providers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/c360studio/taskjournal/llm"
	"github.com/stretchr/testify/assert"
)

func TestOpenAIProvider_Name(t *testing.T) {
	p := &OpenAIProvider{}
	assert.Equal(t, "openai", p.Name())
	assert.NotNil(t, llm.GetProvider("openai"))
}

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.openai.com/v1/chat/completions"},
		{"custom base URL (OpenRouter)", "https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1/chat/completions"},
		{"trailing slash handled", "https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAIProvider_CheckCredentials(t *testing.T) {
	p := &OpenAIProvider{}

	t.Setenv("OPENAI_API_KEY", "")
	assert.True(t, errors.Is(p.CheckCredentials(), llm.ErrMissingCredentials))

	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.NoError(t, p.CheckCredentials())
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	p := &OpenAIProvider{}

	t.Run("sets authorization and OpenRouter headers", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "test-api-key")
		t.Setenv("OPENROUTER_SITE_URL", "https://myapp.com")
		t.Setenv("OPENROUTER_SITE_NAME", "My App")

		req, _ := http.NewRequest(http.MethodPost, "https://openrouter.ai/api/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Equal(t, "Bearer test-api-key", req.Header.Get("Authorization"))
		assert.Equal(t, "https://myapp.com", req.Header.Get("HTTP-Referer"))
		assert.Equal(t, "My App", req.Header.Get("X-Title"))
	})

	t.Run("no headers when env vars empty", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("OPENROUTER_SITE_URL", "")
		t.Setenv("OPENROUTER_SITE_NAME", "")

		req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Empty(t, req.Header.Get("HTTP-Referer"))
		assert.Empty(t, req.Header.Get("X-Title"))
	})
}
