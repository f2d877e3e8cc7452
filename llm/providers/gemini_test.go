package providers

import (
	"encoding/json"
	"testing"

	"github.com/chainweave/forge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_BuildURL(t *testing.T) {
	p := &GeminiProvider{}

	tests := []struct {
		name    string
		baseURL string
		model   string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			model:   "gemini-2.5-flash",
			want:    "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent",
		},
		{
			name:    "custom base URL",
			baseURL: "http://localhost:8080/v1beta",
			model:   "gemini-2.5-flash",
			want:    "http://localhost:8080/v1beta/models/gemini-2.5-flash:generateContent",
		},
		{
			name:    "trailing slash handled",
			baseURL: "https://generativelanguage.googleapis.com/v1beta/",
			model:   "gemini-pro",
			want:    "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.BuildURL(tt.baseURL, tt.model)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeminiProvider_BuildRequestBody(t *testing.T) {
	p := &GeminiProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
	}

	temp := 0.3
	body, err := p.BuildRequestBody("gemini-2.5-flash", messages, llm.RequestOptions{
		Temperature: &temp,
		MaxTokens:   1024,
	})
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	// System message becomes systemInstruction
	sysInst, ok := req["systemInstruction"].(map[string]any)
	require.True(t, ok, "systemInstruction missing")
	parts := sysInst["parts"].([]any)
	assert.Equal(t, "You are helpful.", parts[0].(map[string]any)["text"])

	// Assistant turns become role "model"
	contents := req["contents"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])

	genCfg := req["generationConfig"].(map[string]any)
	assert.Equal(t, 0.3, genCfg["temperature"])
	assert.Equal(t, float64(1024), genCfg["maxOutputTokens"])
}

func TestGeminiProvider_BuildRequestBody_NoOptions(t *testing.T) {
	p := &GeminiProvider{}

	body, err := p.BuildRequestBody("gemini-2.5-flash", []llm.Message{
		{Role: "user", Content: "Hello"},
	}, llm.RequestOptions{})
	require.NoError(t, err)

	s := string(body)
	assert.NotContains(t, s, "generationConfig")
	assert.NotContains(t, s, "systemInstruction")
}

func TestGeminiProvider_ParseResponse(t *testing.T) {
	p := &GeminiProvider{}

	responseBody := []byte(`{
		"candidates": [
			{
				"content": {
					"parts": [{"text": "Hello from Gemini"}],
					"role": "model"
				},
				"finishReason": "STOP"
			}
		],
		"usageMetadata": {
			"promptTokenCount": 9,
			"candidatesTokenCount": 5,
			"totalTokenCount": 14
		},
		"modelVersion": "gemini-2.5-flash"
	}`)

	resp, err := p.ParseResponse(responseBody, "gemini-flash")
	require.NoError(t, err)

	assert.Equal(t, "Hello from Gemini", resp.Content)
	assert.Equal(t, "gemini-flash", resp.Model)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 9, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
	assert.Empty(t, resp.Refusal)
}

func TestGeminiProvider_ParseResponse_BlockedPrompt(t *testing.T) {
	p := &GeminiProvider{}

	responseBody := []byte(`{
		"candidates": [],
		"promptFeedback": {"blockReason": "SAFETY"},
		"usageMetadata": {"promptTokenCount": 9, "totalTokenCount": 9}
	}`)

	resp, err := p.ParseResponse(responseBody, "gemini-flash")
	require.NoError(t, err)

	assert.Empty(t, resp.Content)
	assert.Contains(t, resp.Refusal, "SAFETY")
}

func TestGeminiProvider_ParseResponse_SafetyFinish(t *testing.T) {
	p := &GeminiProvider{}

	responseBody := []byte(`{
		"candidates": [
			{
				"content": {"parts": [], "role": "model"},
				"finishReason": "SAFETY"
			}
		]
	}`)

	resp, err := p.ParseResponse(responseBody, "gemini-flash")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Refusal)
}

func TestGeminiProvider_ParseResponse_NoCandidates(t *testing.T) {
	p := &GeminiProvider{}

	_, err := p.ParseResponse([]byte(`{"candidates": []}`), "gemini-flash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}
