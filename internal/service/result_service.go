package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/repository"
)

var (
	// ErrResultNotFound indicates no stored result for the run id.
	ErrResultNotFound = errors.New("worksheet result not found")
	// ErrTokenRequired indicates a listing without a student token.
	ErrTokenRequired = errors.New("token_no is required")
)

// ResultService reads stored grading results.
type ResultService interface {
	Get(ctx context.Context, runID string) (dto.WorksheetResultResponse, error)
	ListByToken(ctx context.Context, tokenNo string, limit, offset int) ([]dto.WorksheetResultResponse, dto.PaginationMeta, error)
}

type resultService struct {
	repo   repository.WorksheetResultRepository
	logger zerolog.Logger
}

// NewResultService constructs a result service.
func NewResultService(repo repository.WorksheetResultRepository, logger zerolog.Logger) ResultService {
	return &resultService{
		repo:   repo,
		logger: logger.With().Str("component", "result_service").Logger(),
	}
}

func (s *resultService) Get(ctx context.Context, runID string) (dto.WorksheetResultResponse, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return dto.WorksheetResultResponse{}, ErrResultNotFound
	}

	result, err := s.repo.FindByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.WorksheetResultResponse{}, ErrResultNotFound
		}
		return dto.WorksheetResultResponse{}, err
	}
	return dto.NewWorksheetResultResponse(result), nil
}

func (s *resultService) ListByToken(ctx context.Context, tokenNo string, limit, offset int) ([]dto.WorksheetResultResponse, dto.PaginationMeta, error) {
	tokenNo = strings.TrimSpace(tokenNo)
	if tokenNo == "" {
		return nil, dto.PaginationMeta{}, ErrTokenRequired
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	results, total, err := s.repo.ListByToken(ctx, tokenNo, limit, offset)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}
	return dto.NewWorksheetResultResponseSlice(results), dto.PaginationMeta{Total: total, Limit: limit, Offset: offset}, nil
}
