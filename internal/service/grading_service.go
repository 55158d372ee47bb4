package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
)

// WorksheetRunner executes one grading run.
type WorksheetRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// GradingService accepts worksheet submissions and grades them.
type GradingService interface {
	Process(ctx context.Context, req dto.ProcessWorksheetRequest, files []*multipart.FileHeader) (dto.ProcessWorksheetResponse, error)
}

type gradingService struct {
	runner    WorksheetRunner
	intake    ImageIntake
	validator *validator.Validate
	model     string
	logger    zerolog.Logger
}

// NewGradingService constructs the grading service. model names the
// extraction model reported to clients.
func NewGradingService(runner WorksheetRunner, intake ImageIntake, validate *validator.Validate, model string, logger zerolog.Logger) GradingService {
	return &gradingService{
		runner:    runner,
		intake:    intake,
		validator: validate,
		model:     model,
		logger:    logger.With().Str("component", "grading_service").Logger(),
	}
}

// Process validates the submission and runs it through the pipeline. A run
// aborted by a stage failure is reported in the envelope's errors list, not
// as a returned error.
func (s *gradingService) Process(ctx context.Context, req dto.ProcessWorksheetRequest, files []*multipart.FileHeader) (dto.ProcessWorksheetResponse, error) {
	req.TokenNo = strings.TrimSpace(req.TokenNo)
	req.WorksheetName = strings.TrimSpace(req.WorksheetName)
	req.RunID = strings.TrimSpace(req.RunID)
	if err := s.validator.Struct(req); err != nil {
		return dto.ProcessWorksheetResponse{}, err
	}

	images, err := s.intake.Read(ctx, files)
	if err != nil {
		return dto.ProcessWorksheetResponse{}, err
	}

	runReq := pipeline.Request{
		RunID:         req.RunID,
		TokenNo:       req.TokenNo,
		WorksheetName: req.WorksheetName,
		Images:        images,
	}
	if runReq.RunID == "" {
		runReq.RunID = uuid.NewString()
	}

	s.logger.Info().
		Str("run_id", runReq.RunID).
		Str("token_no", runReq.TokenNo).
		Str("worksheet_name", runReq.WorksheetName).
		Int("images", len(images)).
		Msg("processing worksheet")

	response := dto.ProcessWorksheetResponse{
		Processed: []dto.ProcessedWorksheet{},
		Errors:    []dto.FailedWorksheet{},
		ModelUsed: s.model,
	}

	outcome, err := s.runner.Run(ctx, runReq)
	if err != nil {
		var failure *pipeline.Failure
		if !errors.As(err, &failure) {
			return dto.ProcessWorksheetResponse{}, err
		}
		response.Errors = append(response.Errors, dto.NewFailedWorksheet(runReq, failure))
		response.ErrorCount = 1
		return response, nil
	}

	processed := dto.NewProcessedWorksheet(outcome, s.model)
	response.Success = true
	response.Processed = append(response.Processed, processed)
	response.ProcessedCount = 1
	response.TotalImagesProcessed = processed.ImagesCount
	response.IsMultiImage = processed.IsMultiImage
	return response, nil
}
