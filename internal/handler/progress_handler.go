package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/service"
)

// ProgressHandler streams pipeline state transitions over websockets.
type ProgressHandler struct {
	broker service.ProgressBroker
	logger zerolog.Logger
}

// NewProgressHandler creates a progress handler instance.
func NewProgressHandler(broker service.ProgressBroker, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		broker: broker,
		logger: logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Use("/runs", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/runs/:runID", websocket.New(h.stream))
}

func (h *ProgressHandler) stream(conn *websocket.Conn) {
	runID := strings.TrimSpace(conn.Params("runID"))
	if runID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "run id required"))
		_ = conn.Close()
		return
	}

	events, cancel := h.broker.Subscribe(runID)
	defer cancel()

	// The client never sends anything; reading only detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info().Str("run_id", runID).Msg("progress stream connected")
	defer h.logger.Info().Str("run_id", runID).Msg("progress stream disconnected")

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("run_id", runID).Msg("progress stream write failed")
				return
			}
			if event.State.Terminal() {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.State)))
				return
			}
		}
	}
}
