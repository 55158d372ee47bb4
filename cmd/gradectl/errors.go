package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/worksheet-grader/internal/database"
	"github.com/noah-isme/worksheet-grader/internal/repository"
	"github.com/noah-isme/worksheet-grader/internal/service"
)

func errorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect failed grading runs",
	}

	analyze := &cobra.Command{
		Use:   "analyze",
		Short: "Summarise stored failures by error type",
		RunE:  runErrorsAnalyze,
	}
	analyze.Flags().String("since", "", "Only include failures newer than this duration (e.g. 72h)")
	cmd.AddCommand(analyze)
	return cmd
}

func runErrorsAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var since *time.Time
	if raw, _ := cmd.Flags().GetString("since"); strings.TrimSpace(raw) != "" {
		window, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		ts := time.Now().Add(-window)
		since = &ts
	}

	db, err := database.ConnectSQLite(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	analysis, err := service.NewErrorLogService(repository.NewErrorLogRepository(db), logger).Analyze(ctx, since)
	if err != nil {
		return err
	}
	return printJSON(cmd, analysis)
}
