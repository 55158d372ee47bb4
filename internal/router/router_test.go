package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/worksheet-grader/internal/config"
	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/handler"
	"github.com/noah-isme/worksheet-grader/internal/middleware"
	"github.com/noah-isme/worksheet-grader/internal/router"
)

type errorLogStub struct{}

func (errorLogStub) Analyze(context.Context, *time.Time) (dto.ErrorLogAnalysis, error) {
	return dto.ErrorLogAnalysis{}, nil
}

func TestRegisterMountsPublicAndProtectedRoutes(t *testing.T) {
	cfg := config.Config{AppName: "Worksheet Grader", JWTSecret: "secret"}
	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		AdminErrorLogHandler: handler.NewAdminErrorLogHandler(errorLogStub{}, zerolog.Nop()),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Worksheet Grader", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/error-logs/analysis", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
