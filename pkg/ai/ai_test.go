package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGeneratorSendsImagesAsDataURLs(t *testing.T) {
	var captured openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" {\"q1\":{}} "}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", gen.Model())

	out, err := gen.Generate(context.Background(), Prompt{
		System: "extract",
		Text:   "read the worksheet",
		Images: []Image{{MIMEType: "image/png", Data: []byte("png")}},
		JSON:   true,
	})
	require.NoError(t, err)
	require.Equal(t, `{"q1":{}}`, out)

	require.Len(t, captured.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	parts := captured.Messages[1].MultiContent
	require.Len(t, parts, 2)
	require.Equal(t, "read the worksheet", parts[0].Text)
	require.Equal(t, "data:image/png;base64,cG5n", parts[1].ImageURL.URL)
	require.NotNil(t, captured.ResponseFormat)
}

func TestOpenAIGeneratorEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = TextAdapter{Generator: gen}.GenerateText(context.Background(), "hello")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewGeneratorsRequireKeys(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	require.Error(t, err)

	_, err = NewGeminiGenerator(context.Background(), GeminiConfig{APIKey: "  "})
	require.Error(t, err)
}

func TestGeminiHelpers(t *testing.T) {
	parts := geminiParts(Prompt{Text: "hi", Images: []Image{{Data: []byte{1}}}})
	require.Len(t, parts, 2)
	require.Equal(t, genai.Text("hi"), parts[0])
	blob, ok := parts[1].(*genai.Blob)
	require.True(t, ok)
	require.Equal(t, "image/jpeg", blob.MIMEType)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("{\"a\":"), genai.Text("1}")}}},
	}}
	require.Equal(t, `{"a":1}`, firstText(resp))
	require.Empty(t, firstText(nil))
}

func TestNewGeneratorSelectsProvider(t *testing.T) {
	gen, closeFn, err := NewGenerator(context.Background(), ProviderConfig{
		Provider:     "OpenAI",
		Model:        "gpt-4o",
		OpenAIAPIKey: "sk-test",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	require.NoError(t, closeFn())
	require.Equal(t, "gpt-4o", gen.Model())

	_, closeFn, err = NewGenerator(context.Background(), ProviderConfig{Provider: "bard"})
	require.Error(t, err)
	require.NoError(t, closeFn())

	_, _, err = NewGenerator(context.Background(), ProviderConfig{Provider: "gemini"})
	require.ErrorContains(t, err, "api key")
}
