package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/service"
	"github.com/noah-isme/worksheet-grader/internal/utils"
)

// AdminErrorLogHandler exposes failure analytics to admins and teachers.
type AdminErrorLogHandler struct {
	service service.ErrorLogService
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAdminErrorLogHandler constructs the handler.
func NewAdminErrorLogHandler(service service.ErrorLogService, logger zerolog.Logger) *AdminErrorLogHandler {
	return &AdminErrorLogHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_error_log_handler").Logger(),
		now:     time.Now,
	}
}

// Register attaches error log routes to the router group.
func (h *AdminErrorLogHandler) Register(router fiber.Router) {
	router.Get("/error-logs/analysis", h.analysis)
}

func (h *AdminErrorLogHandler) analysis(c *fiber.Ctx) error {
	since, err := h.parseSince(c.Query("since"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "since must be an RFC3339 timestamp or a duration such as 24h")
	}

	logger := requestLogger(h.logger, c)
	analysis, err := h.service.Analyze(c.UserContext(), since)
	if err != nil {
		logger.Error().Err(err).Msg("failed to analyse error logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to analyse error logs")
	}

	event := logger.Info().Int("total_errors", analysis.TotalErrors)
	if since != nil {
		event = event.Time("since", *since)
	}
	event.Msg("error log analysis served")

	return utils.SendSuccess(c, "error log analysis", analysis)
}

// parseSince accepts an absolute timestamp or a lookback duration.
func (h *AdminErrorLogHandler) parseSince(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return nil, fiber.ErrBadRequest
	}
	since := h.now().Add(-window)
	return &since, nil
}
