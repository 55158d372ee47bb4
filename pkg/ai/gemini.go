package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

const (
	providerGemini = "gemini"
	geminiAttempts = 3
)

// GeminiConfig defines configuration options for the Gemini generator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

// GeminiGenerator implements Generator with Google's Gemini models.
type GeminiGenerator struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGeminiGenerator opens a Gemini client. Call Close when done.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/worksheet-grader/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_generator").Logger(),
		sleep:  sleepContext,
	}, nil
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string {
	return g.cfg.Model
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Generate sends the prompt and images in one request. Transport errors are
// retried a few times with a growing pause.
func (g *GeminiGenerator) Generate(parent context.Context, prompt Prompt) (string, error) {
	ctx, span := g.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("images", len(prompt.Images)),
	))
	defer span.End()

	model := g.client.GenerativeModel(g.cfg.Model)
	temperature := g.cfg.Temperature
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temperature}
	if prompt.JSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}

	parts := geminiParts(prompt)

	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		start := time.Now()
		resp, err := model.GenerateContent(ctx, parts...)
		generationDuration.WithLabelValues(providerGemini, g.cfg.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			lastErr = err
			g.logger.Warn().Err(err).Int("attempt", attempt).Msg("gemini request failed")
			if attempt == geminiAttempts {
				break
			}
			if err := g.sleep(ctx, time.Duration(attempt)*300*time.Millisecond); err != nil {
				lastErr = err
				break
			}
			continue
		}

		text := firstText(resp)
		if text == "" {
			return "", g.failed(span, fmt.Errorf("gemini generate: %w", ErrEmptyResponse))
		}
		return text, nil
	}

	return "", g.failed(span, fmt.Errorf("gemini generate: %w", lastErr))
}

func (g *GeminiGenerator) failed(span trace.Span, err error) error {
	generationFailures.WithLabelValues(providerGemini, g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func geminiParts(prompt Prompt) []genai.Part {
	parts := make([]genai.Part, 0, len(prompt.Images)+1)
	parts = append(parts, genai.Text(prompt.Text))
	for _, img := range prompt.Images {
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		parts = append(parts, &genai.Blob{MIMEType: mimeType, Data: img.Data})
	}
	return parts
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if out := strings.TrimSpace(sb.String()); out != "" {
			return out
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
