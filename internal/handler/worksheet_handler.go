package handler

import (
	"errors"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/middleware"
	"github.com/noah-isme/worksheet-grader/internal/service"
	"github.com/noah-isme/worksheet-grader/internal/utils"
)

// WorksheetHandler serves worksheet grading and stored result lookups.
type WorksheetHandler struct {
	grading service.GradingService
	results service.ResultService
	logger  zerolog.Logger
}

// NewWorksheetHandler constructs a worksheet handler.
func NewWorksheetHandler(grading service.GradingService, results service.ResultService, logger zerolog.Logger) *WorksheetHandler {
	return &WorksheetHandler{
		grading: grading,
		results: results,
		logger:  logger.With().Str("component", "worksheet_handler").Logger(),
	}
}

// Register binds worksheet routes. Extra handlers such as rate limiters run
// in front of the process endpoint only.
func (h *WorksheetHandler) Register(router fiber.Router, processGuards ...fiber.Handler) {
	handlers := make([]fiber.Handler, 0, len(processGuards)+1)
	handlers = append(handlers, processGuards...)
	router.Post("/process", append(handlers, h.process)...)
	router.Get("/results", h.listResults)
	router.Get("/results/:runID", h.getResult)
}

func (h *WorksheetHandler) process(c *fiber.Ctx) error {
	var req dto.ProcessWorksheetRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}
	req.RunID = middleware.GetCorrelationID(c)

	files, err := formFiles(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form with worksheet images is required")
	}

	ctx := middleware.ContextWithCorrelation(c.UserContext(), req.RunID)
	response, err := h.grading.Process(ctx, req, files)
	if err != nil {
		return h.handleProcessError(c, err)
	}

	if !response.Success {
		logger := requestLogger(h.logger, c)
		for _, failed := range response.Errors {
			logger.Warn().Str("stage", failed.Stage).Str("error_type", failed.ErrorType).Msg(failed.Error)
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(utils.APIResponse{
			Success: false,
			Data:    response,
			Message: "worksheet could not be graded",
		})
	}

	return utils.SendSuccess(c, "worksheet graded", response)
}

func (h *WorksheetHandler) handleProcessError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid submission", fieldErrors(validationErrors))
	case errors.Is(err, service.ErrImageRequired), errors.Is(err, service.ErrTooManyImages):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrImageTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("worksheet processing failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process worksheet")
	}
}

func (h *WorksheetHandler) listResults(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	items, meta, err := h.results.ListByToken(c.UserContext(), c.Query("token_no"), limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrTokenRequired) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list worksheet results")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list results")
	}

	return utils.OK(c, items, "worksheet results", meta)
}

func (h *WorksheetHandler) getResult(c *fiber.Ctx) error {
	runID := c.Params("runID")
	result, err := h.results.Get(c.UserContext(), runID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "result not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Str("run_id", runID).Msg("failed to load worksheet result")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load result")
	}

	return utils.SendSuccess(c, "worksheet result", result)
}

func formFiles(c *fiber.Ctx) ([]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	files := append([]*multipart.FileHeader{}, form.File["files"]...)
	files = append(files, form.File["file"]...)
	return files, nil
}
