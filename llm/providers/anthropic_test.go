package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/c360studio/taskjournal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL(""))
	assert.Equal(t, "https://custom.api.com/v1/messages", p.BuildURL("https://custom.api.com/"))
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You classify journal entries."},
		{Role: "user", Content: "Ask Sarah about dinner"},
	}

	temp := 0.2
	body, err := p.BuildRequestBody("claude-haiku", messages, &temp, 0, true)
	require.NoError(t, err)

	var req struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    string `json:"system"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &req))

	assert.Equal(t, "claude-haiku", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.Contains(t, req.System, "You classify journal entries.")
	assert.Contains(t, req.System, jsonModeInstruction)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestAnthropicProvider_BuildRequestBody_NoJSONMode(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-haiku", []llm.Message{{Role: "user", Content: "hi"}}, nil, 2048, false)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"max_tokens":2048`)
	assert.NotContains(t, string(body), `"system"`)
	assert.NotContains(t, string(body), `"temperature"`)
}

func TestAnthropicProvider_CheckCredentials(t *testing.T) {
	p := &AnthropicProvider{}

	t.Setenv("ANTHROPIC_API_KEY", "")
	assert.True(t, errors.Is(p.CheckCredentials(), llm.ErrMissingCredentials))

	t.Setenv("ANTHROPIC_API_KEY", "key")
	assert.NoError(t, p.CheckCredentials())
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	responseBody := []byte(`{
		"id": "msg_123",
		"type": "message",
		"content": [
			{"type": "text", "text": "{\"name\": "},
			{"type": "text", "text": "\"Dinner\"}"}
		],
		"model": "claude-haiku-20250101",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 15, "output_tokens": 8}
	}`)

	resp, err := p.ParseResponse(responseBody, "claude-haiku")
	require.NoError(t, err)

	assert.Equal(t, `{"name": "Dinner"}`, resp.Content)
	assert.Equal(t, "claude-haiku-20250101", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 23, resp.Usage.TotalTokens)
}
