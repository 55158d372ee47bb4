package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
	"github.com/noah-isme/worksheet-grader/internal/config"
	"github.com/noah-isme/worksheet-grader/internal/database"
	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/internal/repository"
	"github.com/noah-isme/worksheet-grader/internal/service"
	"github.com/noah-isme/worksheet-grader/pkg/ai"
	"github.com/noah-isme/worksheet-grader/pkg/localstore"
	"github.com/noah-isme/worksheet-grader/pkg/ratelimit"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade <image>...",
		Short: "Grade one worksheet from image files and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("worksheet-name", "w", "", "Worksheet name, e.g. Book7-Worksheet130 (required)")
	f.StringP("token-no", "t", "cli", "Student token recorded with the result")
	f.String("store-dir", "", "Directory the graded images are copied to")
	_ = cmd.MarkFlagRequired("worksheet-name")
	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	images, err := readImages(args, cfg.UploadMaxSizeMB)
	if err != nil {
		return err
	}

	storeDir, _ := cmd.Flags().GetString("store-dir")
	if storeDir == "" {
		storeDir = cfg.StorageLocalDir
	}
	storage, err := localstore.New(storeDir, logger)
	if err != nil {
		return err
	}

	db, err := database.ConnectSQLite(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	index, err := loadIndex(cfg, logger)
	if err != nil {
		return err
	}

	generator, closeGenerator, err := ai.NewGenerator(ctx, providerConfig(cfg, cfg.AIModel, logger))
	if err != nil {
		return err
	}
	defer closeGenerator()

	recorder := service.NewResultRecorder(
		repository.NewWorksheetResultRepository(db),
		repository.NewErrorLogRepository(db),
		generator.Model(),
		logger,
	)
	grader := pipeline.New(pipeline.Dependencies{
		Storage:   storage,
		Extractor: service.NewModelExtractor(generator, ratelimit.New(cfg.ExtractionRPM, cfg.LimitWindow, ratelimit.WithName("extraction"), ratelimit.WithLogger(logger)), nil, logger),
		Judge:     service.NewModelJudge(generator, ratelimit.New(cfg.JudgeRPM, cfg.LimitWindow, ratelimit.WithName("judge"), ratelimit.WithLogger(logger)), logger),
		AnswerKey: index,
		Persister: recorder,
		Failures:  recorder,
		Observer: pipeline.ObserverFunc(func(_ context.Context, event pipeline.Event) {
			logger.Info().Str("state", string(event.State)).Str("kind", string(event.Kind)).Msg("run progress")
		}),
	}, cfg.PipelineWorkers, logger)

	worksheetName, _ := cmd.Flags().GetString("worksheet-name")
	tokenNo, _ := cmd.Flags().GetString("token-no")
	req := pipeline.Request{
		RunID:         uuid.NewString(),
		TokenNo:       strings.TrimSpace(tokenNo),
		WorksheetName: strings.TrimSpace(worksheetName),
		Images:        images,
	}

	outcome, runErr := grader.Run(ctx, req)
	var failure *pipeline.Failure
	switch {
	case runErr == nil:
		return printJSON(cmd, dto.NewProcessedWorksheet(outcome, generator.Model()))
	case errors.As(runErr, &failure):
		if err := printJSON(cmd, dto.NewFailedWorksheet(req, failure)); err != nil {
			return err
		}
		return runErr
	default:
		return runErr
	}
}

func readImages(paths []string, maxSizeMB int) ([]pipeline.Image, error) {
	limit := int64(maxSizeMB) * 1024 * 1024
	images := make([]pipeline.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if limit > 0 && int64(len(data)) > limit {
			return nil, fmt.Errorf("%s: %w", path, service.ErrUploadTooLarge)
		}
		mime := mimetype.Detect(data)
		if !strings.HasPrefix(mime.String(), "image/") {
			return nil, fmt.Errorf("%s is %s: %w", path, mime.String(), service.ErrImageTypeNotAllowed)
		}
		images = append(images, pipeline.Image{
			Filename: filepath.Base(path),
			MIMEType: mime.String(),
			Data:     data,
		})
	}
	return images, nil
}

// loadIndex returns an empty index when the configured file does not exist,
// so every run falls back to the judge.
func loadIndex(cfg config.Config, logger zerolog.Logger) (*answerkey.Index, error) {
	if cfg.AnswerKeyPath == "" {
		return answerkey.NewIndex(), nil
	}
	index, err := answerkey.Load(cfg.AnswerKeyPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("path", cfg.AnswerKeyPath).Msg("answer key not found, using the judge")
		return answerkey.NewIndex(), nil
	}
	if err != nil {
		return nil, err
	}
	return index, nil
}

func providerConfig(cfg config.Config, model string, logger zerolog.Logger) ai.ProviderConfig {
	return ai.ProviderConfig{
		Provider:      cfg.AIProvider,
		Model:         model,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Logger:        logger,
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
