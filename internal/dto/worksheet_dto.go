package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/models"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
)

// ProcessWorksheetRequest describes the multipart fields of a grading submission.
type ProcessWorksheetRequest struct {
	TokenNo       string `form:"token_no" validate:"required,max=64"`
	WorksheetName string `form:"worksheet_name" validate:"required,max=255"`
	RunID         string `validate:"omitempty,max=64"`
}

// ProcessedWorksheet is one successfully graded submission.
type ProcessedWorksheet struct {
	RunID           string                  `json:"run_id"`
	Filename        string                  `json:"filename"`
	WorksheetName   string                  `json:"worksheet_name"`
	TokenNo         string                  `json:"token_no"`
	ImageURLs       []string                `json:"image_urls"`
	ResultID        string                  `json:"result_id,omitempty"`
	OverallScore    float64                 `json:"overall_score"`
	TotalPossible   float64                 `json:"total_possible"`
	CorrectCount    int                     `json:"correct_answers"`
	WrongCount      int                     `json:"wrong_answers"`
	UnansweredCount int                     `json:"unanswered"`
	EntriesCount    int                     `json:"entries_count"`
	ImagesCount     int                     `json:"images_count"`
	IsMultiImage    bool                    `json:"is_multi_image"`
	ImageFilenames  []string                `json:"image_filenames"`
	QuestionScores  []grading.QuestionScore `json:"question_scores"`
	GradedBy        string                  `json:"graded_by"`
	BookID          string                  `json:"book_id,omitempty"`
	WorksheetID     string                  `json:"worksheet_id,omitempty"`
	OverallFeedback string                  `json:"overall_feedback,omitempty"`
	Warnings        []pipeline.Warning      `json:"warnings,omitempty"`
	Diagnostics     []string                `json:"zero_marks_diagnostics,omitempty"`
	ProcessedWith   string                  `json:"processed_with"`
}

// FailedWorksheet describes a submission that could not be graded.
type FailedWorksheet struct {
	RunID          string   `json:"run_id"`
	Filename       string   `json:"filename"`
	Stage          string   `json:"stage"`
	ErrorType      string   `json:"error_type"`
	Error          string   `json:"error"`
	ImagesCount    int      `json:"images_count"`
	IsMultiImage   bool     `json:"is_multi_image"`
	ImageFilenames []string `json:"image_filenames,omitempty"`
}

// ProcessWorksheetResponse is the envelope returned by the process endpoint.
type ProcessWorksheetResponse struct {
	Success              bool                 `json:"success"`
	ProcessedCount       int                  `json:"processed_count"`
	ErrorCount           int                  `json:"error_count"`
	Processed            []ProcessedWorksheet `json:"processed"`
	Errors               []FailedWorksheet    `json:"errors"`
	ModelUsed            string               `json:"model_used"`
	TotalImagesProcessed int                  `json:"total_images_processed,omitempty"`
	IsMultiImage         bool                 `json:"is_multi_image,omitempty"`
}

// NewProcessedWorksheet flattens a pipeline outcome for API clients.
func NewProcessedWorksheet(outcome *pipeline.Outcome, model string) ProcessedWorksheet {
	item := ProcessedWorksheet{
		RunID:           outcome.RunID,
		Filename:        joinNames(outcome.Filenames),
		WorksheetName:   outcome.WorksheetName,
		TokenNo:         outcome.TokenNo,
		ImageURLs:       outcome.ImageURLs,
		ResultID:        outcome.ResultID,
		OverallScore:    outcome.Result.OverallScore,
		TotalPossible:   outcome.Result.TotalPossible,
		CorrectCount:    outcome.Result.CorrectCount,
		WrongCount:      outcome.Result.WrongCount,
		UnansweredCount: outcome.Result.UnansweredCount,
		EntriesCount:    len(outcome.Entries),
		ImagesCount:     outcome.ImagesCount(),
		IsMultiImage:    outcome.ImagesCount() > 1,
		ImageFilenames:  outcome.Filenames,
		QuestionScores:  outcome.Result.QuestionScores,
		GradedBy:        outcome.Result.GradedBy,
		OverallFeedback: outcome.Result.OverallFeedback,
		Warnings:        outcome.Warnings,
		Diagnostics:     outcome.Diagnostics,
		ProcessedWith:   model,
	}
	if outcome.Key != nil {
		item.BookID = outcome.Key.BookID
		item.WorksheetID = outcome.Key.WorksheetID
	}
	return item
}

// NewFailedWorksheet describes a run aborted by a stage failure.
func NewFailedWorksheet(req pipeline.Request, failure *pipeline.Failure) FailedWorksheet {
	filenames := req.Filenames()
	item := FailedWorksheet{
		RunID:          req.RunID,
		Filename:       joinNames(filenames),
		ImagesCount:    len(filenames),
		IsMultiImage:   len(filenames) > 1,
		ImageFilenames: filenames,
	}
	if failure != nil {
		item.Stage = string(failure.Stage)
		item.ErrorType = string(failure.Kind)
		item.Error = failure.Reason
	}
	return item
}

// WorksheetResultResponse is a stored result as returned by the results endpoints.
type WorksheetResultResponse struct {
	ID              uint                    `json:"id"`
	RunID           string                  `json:"run_id"`
	TokenNo         string                  `json:"token_no"`
	WorksheetName   string                  `json:"worksheet_name"`
	BookID          string                  `json:"book_id,omitempty"`
	WorksheetID     string                  `json:"worksheet_id,omitempty"`
	OverallScore    float64                 `json:"overall_score"`
	TotalPossible   float64                 `json:"total_possible"`
	CorrectCount    int                     `json:"correct_answers"`
	WrongCount      int                     `json:"wrong_answers"`
	UnansweredCount int                     `json:"unanswered"`
	GradedBy        string                  `json:"graded_by"`
	ModelUsed       string                  `json:"model_used"`
	ImagesCount     int                     `json:"images_count"`
	OverallFeedback string                  `json:"overall_feedback,omitempty"`
	ReasonWhy       string                  `json:"reason_why,omitempty"`
	QuestionScores  []grading.QuestionScore `json:"question_scores"`
	ImageURLs       []string                `json:"image_urls"`
	ImageFilenames  []string                `json:"image_filenames"`
	Diagnostics     []string                `json:"zero_marks_diagnostics,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

// NewWorksheetResultResponse converts a stored model into its API form.
func NewWorksheetResultResponse(model models.WorksheetResult) WorksheetResultResponse {
	resp := WorksheetResultResponse{
		ID:              model.ID,
		RunID:           model.RunID,
		TokenNo:         model.TokenNo,
		WorksheetName:   model.WorksheetName,
		BookID:          model.BookID,
		WorksheetID:     model.WorksheetID,
		OverallScore:    model.OverallScore,
		TotalPossible:   model.TotalPossible,
		CorrectCount:    model.CorrectCount,
		WrongCount:      model.WrongCount,
		UnansweredCount: model.UnansweredCount,
		GradedBy:        model.GradedBy,
		ModelUsed:       model.ModelUsed,
		ImagesCount:     model.ImagesCount,
		OverallFeedback: model.OverallFeedback,
		ReasonWhy:       model.ReasonWhy,
		CreatedAt:       model.CreatedAt,
	}

	decodeJSON(model.QuestionScores, &resp.QuestionScores)
	decodeJSON(model.ImageURLs, &resp.ImageURLs)
	decodeJSON(model.ImageFilenames, &resp.ImageFilenames)
	decodeJSON(model.Diagnostics, &resp.Diagnostics)
	if resp.QuestionScores == nil {
		resp.QuestionScores = []grading.QuestionScore{}
	}
	return resp
}

// NewWorksheetResultResponseSlice converts a list of stored results.
func NewWorksheetResultResponseSlice(items []models.WorksheetResult) []WorksheetResultResponse {
	out := make([]WorksheetResultResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewWorksheetResultResponse(item))
	}
	return out
}

// PaginationMeta accompanies paged list responses.
type PaginationMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func decodeJSON(raw []byte, target interface{}) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, target)
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
