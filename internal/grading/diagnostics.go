package grading

import (
	"fmt"
	"strings"
)

const maxListedIncorrect = 5

// Diagnose explains a zero score: which answers were wrong and how many
// were left blank. It returns nil for any non-zero score.
func Diagnose(result Result) []string {
	if result.OverallScore != 0 {
		return nil
	}

	var incorrect []string
	unanswered := 0
	for _, score := range result.QuestionScores {
		if score.IsCorrect {
			continue
		}
		if !score.Answered() {
			unanswered++
			continue
		}
		expected := ""
		if score.ReferenceAnswer != nil {
			expected = *score.ReferenceAnswer
		}
		incorrect = append(incorrect, fmt.Sprintf("Q%d: answered '%s' instead of '%s'", score.QuestionNumber, score.StudentAnswer, expected))
	}

	var diagnostics []string
	if len(incorrect) > 0 {
		listed := incorrect
		if len(listed) > maxListedIncorrect {
			listed = listed[:maxListedIncorrect]
		}
		diagnostics = append(diagnostics, "Incorrect answers: "+strings.Join(listed, ", "))
		if extra := len(incorrect) - maxListedIncorrect; extra > 0 {
			diagnostics = append(diagnostics, fmt.Sprintf("...and %d more", extra))
		}
	}
	if unanswered > 0 {
		diagnostics = append(diagnostics, fmt.Sprintf("Unanswered questions: %d", unanswered))
	}
	return diagnostics
}
