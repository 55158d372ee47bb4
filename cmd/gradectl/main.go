package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/worksheet-grader/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gradectl",
		Short:        "Grade worksheets and maintain answer keys from the command line",
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("provider", "", "Model provider (gemini, openai)")
	f.String("model", "", "Model name used for extraction")
	f.String("answer-key", "", "Answer key file (.json, .yaml)")
	f.String("db", "gradectl.db", "SQLite database for results and error logs")

	root.AddCommand(gradeCmd(), answerKeyCmd(), errorsCmd())
	return root
}

// loadConfig reads the same environment as the API server. Flags set on the
// command line win over it; unset flags only fill keys without a default.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	_ = godotenv.Load()
	v := config.NewViper()
	if err := bindFlags(v, cmd, map[string]string{
		"app.log_level":   "log-level",
		"ai.provider":     "provider",
		"ai.model":        "model",
		"answer_key.path": "answer-key",
		"database.url":    "db",
	}); err != nil {
		return config.Config{}, err
	}
	v.Set("database.driver", "sqlite")

	return config.FromViper(v)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		pf := cmd.Flags().Lookup(flag)
		if pf == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, pf); err != nil {
			return fmt.Errorf("bind %s: %w", flag, err)
		}
	}
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger = logger.Level(level)
	}
	return logger
}
