// Package grading turns extracted student answers into a 40-point result.
package grading

// TotalPossible is the fixed number of points per worksheet.
const TotalPossible = 40.0

const (
	// GradedByReference marks results scored against an answer key.
	GradedByReference = "reference"
	// GradedByJudge marks results scored by the fallback model judge.
	GradedByJudge = "judge"
)

// ExtractedEntry is one question/answer pair read from a worksheet image.
type ExtractedEntry struct {
	QuestionID    string `json:"question_id"`
	QuestionText  string `json:"question_text"`
	StudentAnswer string `json:"student_answer"`
}

// CanonicalEntry is the single answer kept for one question of a run.
type CanonicalEntry struct {
	QuestionNumber int    `json:"question_number"`
	QuestionText   string `json:"question_text"`
	StudentAnswer  string `json:"student_answer"`
}

// QuestionScore is the outcome for one question.
type QuestionScore struct {
	QuestionNumber  int     `json:"question_number"`
	QuestionText    string  `json:"question"`
	StudentAnswer   string  `json:"student_answer"`
	ReferenceAnswer *string `json:"expected_answer"`
	PointsEarned    float64 `json:"points_earned"`
	MaxPoints       float64 `json:"max_points"`
	IsCorrect       bool    `json:"is_correct"`
	Feedback        string  `json:"feedback,omitempty"`
}

// Answered reports whether the student wrote anything.
func (q QuestionScore) Answered() bool {
	return !isBlank(q.StudentAnswer)
}

// Result is the graded worksheet.
type Result struct {
	QuestionScores  []QuestionScore `json:"question_scores"`
	OverallScore    float64         `json:"overall_score"`
	TotalPossible   float64         `json:"total_possible"`
	CorrectCount    int             `json:"correct_answers"`
	WrongCount      int             `json:"wrong_answers"`
	UnansweredCount int             `json:"unanswered"`
	OverallFeedback string          `json:"overall_feedback,omitempty"`
	ReasonWhy       string          `json:"reason_why,omitempty"`
	GradedBy        string          `json:"graded_by"`
}
