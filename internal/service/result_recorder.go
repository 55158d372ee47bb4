package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/worksheet-grader/internal/models"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/internal/repository"
)

// ResultRecorder stores graded outcomes and failed runs.
type ResultRecorder interface {
	pipeline.Persister
	pipeline.FailureRecorder
}

type resultRecorder struct {
	results   repository.WorksheetResultRepository
	errorLogs repository.ErrorLogRepository
	model     string
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewResultRecorder constructs a recorder. errorLogs may be nil, in which
// case failures are only logged.
func NewResultRecorder(results repository.WorksheetResultRepository, errorLogs repository.ErrorLogRepository, model string, logger zerolog.Logger) ResultRecorder {
	return &resultRecorder{
		results:   results,
		errorLogs: errorLogs,
		model:     model,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "result_recorder").Logger(),
	}
}

func (r *resultRecorder) Persist(ctx context.Context, outcome *pipeline.Outcome) (string, error) {
	record := models.WorksheetResult{
		RunID:           outcome.RunID,
		TokenNo:         strings.TrimSpace(outcome.TokenNo),
		WorksheetName:   r.clean(outcome.WorksheetName),
		OverallScore:    outcome.Result.OverallScore,
		TotalPossible:   outcome.Result.TotalPossible,
		CorrectCount:    outcome.Result.CorrectCount,
		WrongCount:      outcome.Result.WrongCount,
		UnansweredCount: outcome.Result.UnansweredCount,
		GradedBy:        outcome.Result.GradedBy,
		ModelUsed:       r.model,
		ImagesCount:     outcome.ImagesCount(),
		OverallFeedback: r.clean(outcome.Result.OverallFeedback),
		ReasonWhy:       r.clean(outcome.Result.ReasonWhy),
		QuestionScores:  mustJSON(outcome.Result.QuestionScores),
		ImageURLs:       mustJSON(outcome.ImageURLs),
		ImageFilenames:  mustJSON(outcome.Filenames),
	}
	if outcome.Key != nil {
		record.BookID = outcome.Key.BookID
		record.WorksheetID = outcome.Key.WorksheetID
	}
	if len(outcome.Diagnostics) > 0 {
		record.Diagnostics = mustJSON(outcome.Diagnostics)
	}

	if err := r.results.Create(ctx, &record); err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(record.ID), 10), nil
}

func (r *resultRecorder) RecordFailure(ctx context.Context, req pipeline.Request, failure *pipeline.Failure) {
	if r.errorLogs == nil || failure == nil {
		return
	}

	entry := models.ErrorLog{
		RunID:         req.RunID,
		TokenNo:       strings.TrimSpace(req.TokenNo),
		WorksheetName: r.clean(req.WorksheetName),
		Stage:         string(failure.Stage),
		ErrorType:     string(failure.Kind),
		Message:       failure.Reason,
		Payload: mustJSON(map[string]interface{}{
			"image_filenames": req.Filenames(),
			"images_count":    len(req.Images),
		}),
	}
	if err := r.errorLogs.Create(ctx, &entry); err != nil {
		r.logger.Error().Err(err).Str("run_id", req.RunID).Msg("failed to store error log entry")
	}
}

func (r *resultRecorder) clean(text string) string {
	return strings.TrimSpace(r.sanitizer.Sanitize(text))
}

func mustJSON(v interface{}) datatypes.JSON {
	payload, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(payload)
}
