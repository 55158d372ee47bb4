package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/pkg/ai"
	"github.com/noah-isme/worksheet-grader/pkg/salvage"
)

const extractionSystemPrompt = `You read photos of handwritten student worksheets.
Extract every question and the answer the student wrote, in the order they appear on the pages.
Several images may show different parts of the same worksheet; list each question once.
Never correct, complete or guess an answer. Leave the answer empty when the student wrote nothing.
Reply with one JSON object only, shaped like
{"q1": {"question": "2 + 2 = ?", "answer": "4"}, "q2": {"question": "...", "answer": ""}}`

// Limiter gates calls to a hosted model.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// ExtractionCache remembers extraction replies for identical submissions.
type ExtractionCache interface {
	Get(ctx context.Context, key string) ([]grading.ExtractedEntry, bool)
	Set(ctx context.Context, key string, entries []grading.ExtractedEntry)
}

// ModelExtractor reads answers from worksheet images with a vision model.
type ModelExtractor struct {
	generator ai.Generator
	limiter   Limiter
	cache     ExtractionCache
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewModelExtractor constructs an extractor. limiter and cache may be nil.
func NewModelExtractor(generator ai.Generator, limiter Limiter, cache ExtractionCache, logger zerolog.Logger) *ModelExtractor {
	return &ModelExtractor{
		generator: generator,
		limiter:   limiter,
		cache:     cache,
		logger:    logger.With().Str("component", "model_extractor").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/worksheet-grader/internal/service/extraction"),
	}
}

// Extract sends all images in a single model call and parses the reply.
func (e *ModelExtractor) Extract(ctx context.Context, images []pipeline.Image, worksheetName string) ([]grading.ExtractedEntry, error) {
	ctx, span := e.tracer.Start(ctx, "extraction.extract", trace.WithAttributes(
		attribute.Int("extraction.images", len(images)),
		attribute.String("extraction.model", e.generator.Model()),
	))
	defer span.End()

	var cacheKey string
	if e.cache != nil {
		cacheKey = ExtractionKey(e.generator.Model(), worksheetName, images)
		if entries, ok := e.cache.Get(ctx, cacheKey); ok {
			span.SetAttributes(attribute.Bool("extraction.cached", true))
			e.logger.Debug().Str("cache_key", cacheKey).Int("entries", len(entries)).Msg("extraction served from cache")
			return entries, nil
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter wait aborted")
			return nil, err
		}
	}

	prompt := ai.Prompt{
		System: extractionSystemPrompt,
		Text:   extractionUserPrompt(worksheetName, len(images)),
		Images: make([]ai.Image, len(images)),
		JSON:   true,
	}
	for i, img := range images {
		prompt.Images[i] = ai.Image{MIMEType: img.MIMEType, Data: img.Data}
	}

	reply, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, fmt.Errorf("extract answers: %w", err)
	}

	entries, err := ParseExtraction(reply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply not salvageable")
		e.logger.Warn().Err(err).Str("reply", truncate(reply, 512)).Msg("extraction reply could not be parsed")
		return nil, fmt.Errorf("parse extraction reply: %w", err)
	}

	span.SetAttributes(attribute.Int("extraction.entries", len(entries)))
	if e.cache != nil && len(entries) > 0 {
		e.cache.Set(ctx, cacheKey, entries)
	}
	return entries, nil
}

func extractionUserPrompt(worksheetName string, images int) string {
	if images > 1 {
		return fmt.Sprintf("Worksheet %q, %d images of the same worksheet. Return the JSON object.", worksheetName, images)
	}
	return fmt.Sprintf("Worksheet %q. Return the JSON object.", worksheetName)
}

// ParseExtraction turns a model reply into entries. Two shapes are accepted:
// an object keyed by question id whose values carry question and answer
// fields, and an object with a "questions" array of numbered items. Keys
// starting with an underscore and values missing either field are skipped.
func ParseExtraction(reply string) ([]grading.ExtractedEntry, error) {
	obj, err := salvage.Salvage(reply)
	if err != nil {
		return nil, err
	}

	if raw, ok := obj.Get("questions"); ok && isJSONArray(raw) {
		return parseQuestionList(raw)
	}

	entries := make([]grading.ExtractedEntry, 0, obj.Len())
	for _, key := range obj.Keys {
		if strings.HasPrefix(key, "_") {
			continue
		}
		raw, _ := obj.Get(key)

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		question, hasQuestion := fields["question"]
		answer, hasAnswer := fields["answer"]
		if !hasQuestion || !hasAnswer {
			continue
		}

		entries = append(entries, grading.ExtractedEntry{
			QuestionID:    key,
			QuestionText:  scalarText(question),
			StudentAnswer: scalarText(answer),
		})
	}
	return entries, nil
}

func parseQuestionList(raw json.RawMessage) ([]grading.ExtractedEntry, error) {
	var items []struct {
		QuestionNumber json.RawMessage `json:"question_number"`
		Question       json.RawMessage `json:"question"`
		StudentAnswer  json.RawMessage `json:"student_answer"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode questions array: %w", err)
	}

	entries := make([]grading.ExtractedEntry, 0, len(items))
	for i, item := range items {
		if item.Question == nil {
			continue
		}
		id := scalarText(item.QuestionNumber)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		entries = append(entries, grading.ExtractedEntry{
			QuestionID:    "q" + id,
			QuestionText:  scalarText(item.Question),
			StudentAnswer: scalarText(item.StudentAnswer),
		})
	}
	return entries, nil
}

// scalarText renders a JSON string, number or boolean as text. null and
// composite values become empty.
func scalarText(raw json.RawMessage) string {
	var value interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &value) != nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
