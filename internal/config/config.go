package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GRADER_APP_PORT.
const EnvPrefix = "GRADER"

// Config holds runtime configuration values for the grader.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	EventsSubject  string
	JWTSecret      string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	StorageLocalDir        string

	AIProvider    string
	AIModel       string
	JudgeModel    string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	AnswerKeyPath string

	ExtractionRPM int
	JudgeRPM      int
	ScrapeRPM     int
	LimitWindow   time.Duration

	PipelineWorkers    int
	UploadMaxSizeMB    int
	UploadMaxFiles     int
	ExtractionCacheTTL time.Duration

	HTTPRateLimitMax    int
	HTTPRateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Validate checks the settings the HTTP API cannot run without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	return nil
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// NewViper returns a viper instance with the grader's env binding and
// defaults. Command line tools bind their flags onto it before FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Worksheet Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.subject", "grader.worksheet")
	v.SetDefault("cloudinary.folder", "worksheets")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("answer_key.path", "answer_key.json")
	v.SetDefault("limits.extraction_rpm", 30)
	v.SetDefault("limits.judge_rpm", 30)
	v.SetDefault("limits.scrape_rpm", 45)
	v.SetDefault("limits.window", "1m")
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("upload.max_files", 10)
	v.SetDefault("cache.extraction_ttl", "24h")
	v.SetDefault("http.rate_limit_max", 20)
	v.SetDefault("http.rate_limit_window", "1m")

	return v
}

// FromViper builds a Config from an initialised viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	limitWindow, err := duration(v, "limits.window", time.Minute)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := duration(v, "cache.extraction_ttl", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := duration(v, "http.rate_limit_window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("app.log_level")),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsSubject:          v.GetString("events.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		StorageLocalDir:        v.GetString("storage.local_dir"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		JudgeModel:             v.GetString("ai.judge_model"),
		GeminiAPIKey:           v.GetString("gemini_api_key"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:          v.GetString("openai_base_url"),
		AnswerKeyPath:          v.GetString("answer_key.path"),
		ExtractionRPM:          v.GetInt("limits.extraction_rpm"),
		JudgeRPM:               v.GetInt("limits.judge_rpm"),
		ScrapeRPM:              v.GetInt("limits.scrape_rpm"),
		LimitWindow:            limitWindow,
		PipelineWorkers:        v.GetInt("pipeline.workers"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		UploadMaxFiles:         v.GetInt("upload.max_files"),
		ExtractionCacheTTL:     cacheTTL,
		HTTPRateLimitMax:       v.GetInt("http.rate_limit_max"),
		HTTPRateLimitWindow:    rateWindow,
	}

	if cfg.PipelineWorkers <= 0 {
		cfg.PipelineWorkers = 5
	}
	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}
	if cfg.UploadMaxFiles <= 0 {
		cfg.UploadMaxFiles = 10
	}
	if cfg.HTTPRateLimitMax <= 0 {
		cfg.HTTPRateLimitMax = 20
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = cfg.AIModel
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
