package answerkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/pkg/salvage"
)

const (
	defaultChunkSize = 4000
	defaultMaxChunks = 3
)

// ErrNoWorksheets indicates no chunk of the source text produced answers.
var ErrNoWorksheets = errors.New("no worksheets found in answer text")

// TextGenerator produces a model completion for a text prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Limiter gates calls to the model.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// BuilderConfig tunes how answer text is split before extraction.
type BuilderConfig struct {
	ChunkSize int
	MaxChunks int
}

// Builder turns the text of a book's answer pages into index entries.
type Builder struct {
	generator TextGenerator
	limiter   Limiter
	cfg       BuilderConfig
	logger    zerolog.Logger
}

// NewBuilder constructs a Builder. The limiter may be nil.
func NewBuilder(generator TextGenerator, limiter Limiter, cfg BuilderConfig, logger zerolog.Logger) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = defaultMaxChunks
	}

	return &Builder{
		generator: generator,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger.With().Str("component", "answer_key_builder").Logger(),
	}
}

// Build extracts worksheet answers for one book. Chunks whose reply cannot
// be salvaged are skipped; later chunks override earlier ones for the same
// worksheet.
func (b *Builder) Build(ctx context.Context, bookID, text string) (map[string][]Reference, error) {
	chunks := splitChunks(text, b.cfg.ChunkSize)
	if len(chunks) > b.cfg.MaxChunks {
		chunks = chunks[:b.cfg.MaxChunks]
	}

	worksheets := map[string][]Reference{}
	for i, chunk := range chunks {
		if b.limiter != nil {
			if err := b.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		reply, err := b.generator.GenerateText(ctx, chunkPrompt(bookID, i+1, chunk))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn().Err(err).Str("book_id", bookID).Int("chunk", i+1).Msg("answer extraction failed for chunk")
			continue
		}

		var payload struct {
			Worksheets map[string][]Reference `json:"worksheets"`
		}
		if err := salvage.Unmarshal(reply, &payload); err != nil {
			b.logger.Warn().Err(err).Str("book_id", bookID).Int("chunk", i+1).Msg("unusable answer extraction reply")
			continue
		}

		for worksheetID, refs := range payload.Worksheets {
			if len(refs) == 0 {
				continue
			}
			worksheets[CanonicalID(worksheetID)] = refs
		}
	}

	if len(worksheets) == 0 {
		return nil, fmt.Errorf("book %s: %w", bookID, ErrNoWorksheets)
	}

	b.logger.Info().Str("book_id", bookID).Int("worksheets", len(worksheets)).Msg("answer key extracted")
	return worksheets, nil
}

// BuildInto runs Build and stores the result in idx.
func (b *Builder) BuildInto(ctx context.Context, idx *Index, bookID, text string) (int, error) {
	worksheets, err := b.Build(ctx, bookID, text)
	if err != nil {
		return 0, err
	}
	for worksheetID, refs := range worksheets {
		idx.Set(bookID, worksheetID, refs)
	}
	return len(worksheets), nil
}

func splitChunks(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func chunkPrompt(bookID string, chunk int, text string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are reading text from the answer pages of Book %s (chunk %d).\n\n", bookID, chunk)
	sb.WriteString("Extract worksheet answers. Sections start with headings such as \"Answer - 130\".\n")
	sb.WriteString("For each section take the worksheet number from the heading and every numbered answer below it, ")
	sb.WriteString("exactly as written and in order.\n\n")
	sb.WriteString(`Return JSON shaped like {"worksheets": {"130": ["answer1", "answer2"], "131": ["answer1"]}}.`)
	sb.WriteString("\n\nText:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nReturn only JSON.")
	return sb.String()
}
