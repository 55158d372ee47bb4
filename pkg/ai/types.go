package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the model returned no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Image is an inline image attached to a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// Prompt is a single multimodal request. When JSON is set the provider is
// asked to answer with a JSON object only.
type Prompt struct {
	System string
	Text   string
	Images []Image
	JSON   bool
}

// Generator describes a hosted model able to answer prompts with text.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Model() string
}

// TextAdapter exposes a Generator through a plain text-in/text-out call.
type TextAdapter struct {
	Generator Generator
	System    string
}

// GenerateText sends prompt as a JSON-mode request without images.
func (a TextAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	return a.Generator.Generate(ctx, Prompt{System: a.System, Text: prompt, JSON: true})
}
