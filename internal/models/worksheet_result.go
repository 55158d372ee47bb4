package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorksheetResult is a graded worksheet together with its submission metadata.
type WorksheetResult struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RunID           string         `gorm:"size:64;uniqueIndex;not null" json:"run_id"`
	TokenNo         string         `gorm:"size:64;index;not null" json:"token_no"`
	WorksheetName   string         `gorm:"size:255;not null" json:"worksheet_name"`
	BookID          string         `gorm:"size:32" json:"book_id,omitempty"`
	WorksheetID     string         `gorm:"size:32" json:"worksheet_id,omitempty"`
	OverallScore    float64        `json:"overall_score"`
	TotalPossible   float64        `json:"total_possible"`
	CorrectCount    int            `json:"correct_answers"`
	WrongCount      int            `json:"wrong_answers"`
	UnansweredCount int            `json:"unanswered"`
	GradedBy        string         `gorm:"size:16;not null" json:"graded_by"`
	ModelUsed       string         `gorm:"size:64" json:"model_used"`
	ImagesCount     int            `json:"images_count"`
	OverallFeedback string         `gorm:"type:text" json:"overall_feedback,omitempty"`
	ReasonWhy       string         `gorm:"type:text" json:"reason_why,omitempty"`
	QuestionScores  datatypes.JSON `json:"question_scores"`
	ImageURLs       datatypes.JSON `json:"image_urls"`
	ImageFilenames  datatypes.JSON `json:"image_filenames"`
	Diagnostics     datatypes.JSON `json:"zero_marks_diagnostics,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ErrorLog records a grading run that failed after the request was accepted.
type ErrorLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	RunID         string         `gorm:"size:64;index" json:"run_id"`
	TokenNo       string         `gorm:"size:64;index" json:"token_no"`
	WorksheetName string         `gorm:"size:255" json:"worksheet_name"`
	Stage         string         `gorm:"size:32;index;not null" json:"stage"`
	ErrorType     string         `gorm:"size:32;index;not null" json:"error_type"`
	Message       string         `gorm:"type:text" json:"message"`
	Payload       datatypes.JSON `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
