package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
	"github.com/noah-isme/worksheet-grader/pkg/ai"
	"github.com/noah-isme/worksheet-grader/pkg/ratelimit"
)

const answerKeySystemPrompt = "You extract worksheet answer keys from book answer pages. Reply with JSON only."

func answerKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answerkey",
		Short: "Maintain the worksheet answer key",
	}
	cmd.AddCommand(answerKeyBuildCmd())
	return cmd
}

func answerKeyBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Extract a book's answers from text and merge them into an answer key file",
		RunE:  runAnswerKeyBuild,
	}
	f := cmd.Flags()
	f.String("book", "", "Book id the text belongs to (required)")
	f.String("text", "-", "File with the book's answer text (- for stdin)")
	f.StringP("out", "o", "", "Answer key file to update (defaults to --answer-key)")
	f.Int("chunk-size", 0, "Characters per model request")
	f.Int("max-chunks", 0, "Maximum chunks sent per book")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func runAnswerKeyBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bookID, _ := cmd.Flags().GetString("book")
	bookID = answerkey.CanonicalID(bookID)
	textPath, _ := cmd.Flags().GetString("text")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.AnswerKeyPath
	}
	if out == "" {
		return fmt.Errorf("an output file is required: pass --out or --answer-key")
	}

	text, err := readText(cmd, textPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("answer text for book %s is empty", bookID)
	}

	cfg.AnswerKeyPath = out
	index, err := loadIndex(cfg, logger)
	if err != nil {
		return err
	}

	generator, closeGenerator, err := ai.NewGenerator(ctx, providerConfig(cfg, cfg.AIModel, logger))
	if err != nil {
		return err
	}
	defer closeGenerator()

	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	maxChunks, _ := cmd.Flags().GetInt("max-chunks")
	builder := answerkey.NewBuilder(
		ai.TextAdapter{Generator: generator, System: answerKeySystemPrompt},
		ratelimit.New(cfg.ScrapeRPM, cfg.LimitWindow, ratelimit.WithName("answer_key"), ratelimit.WithLogger(logger)),
		answerkey.BuilderConfig{ChunkSize: chunkSize, MaxChunks: maxChunks},
		logger,
	)

	added, err := builder.BuildInto(ctx, index, bookID, text)
	if err != nil {
		return err
	}
	if err := index.Save(out); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "book %s: %d worksheets written to %s (%d total)\n", bookID, added, out, index.WorksheetCount())
	return nil
}

func readText(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
