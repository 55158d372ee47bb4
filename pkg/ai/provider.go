package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures a hosted model provider.
type ProviderConfig struct {
	Provider      string
	Model         string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Logger        zerolog.Logger
}

// NewGenerator builds the generator for cfg.Provider. The returned close
// function releases provider resources and is never nil.
func NewGenerator(ctx context.Context, cfg ProviderConfig) (Generator, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case providerGemini, "":
		gen, err := NewGeminiGenerator(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.Model,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return gen, gen.Close, nil
	case providerOpenAI:
		gen, err := NewOpenAIGenerator(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return gen, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
