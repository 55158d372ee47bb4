package handler

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/middleware"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	if c == nil {
		return &base
	}
	ctx := base.With()
	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		ctx = ctx.Str("correlation_id", correlation)
	}
	if principal, ok := middleware.GetPrincipal(c); ok {
		ctx = ctx.Str("subject", principal.Subject)
	}
	logger := ctx.Logger()
	return &logger
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[toSnakeCase(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

func toSnakeCase(name string) string {
	var b strings.Builder
	upperRun := false
	for i, r := range name {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if i > 0 && !upperRun {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		upperRun = upper
		b.WriteRune(r)
	}
	return b.String()
}
