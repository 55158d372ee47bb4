package grading

// Reconcile normalises a result produced by the model judge. The judge's
// aggregates and point columns are discarded: counts come from the
// per-question list, every question is worth TotalPossible/N and a question
// earns its points only when it is answered and marked correct.
func Reconcile(judged Result) Result {
	out := Result{
		TotalPossible:   TotalPossible,
		OverallFeedback: judged.OverallFeedback,
		ReasonWhy:       judged.ReasonWhy,
		GradedBy:        GradedByJudge,
		QuestionScores:  make([]QuestionScore, len(judged.QuestionScores)),
	}
	if len(judged.QuestionScores) == 0 {
		return out
	}

	perQuestion := TotalPossible / float64(len(judged.QuestionScores))
	for i, score := range judged.QuestionScores {
		if score.QuestionNumber <= 0 {
			score.QuestionNumber = i + 1
		}
		score.MaxPoints = perQuestion
		score.PointsEarned = 0

		switch {
		case !score.Answered():
			score.IsCorrect = false
			out.UnansweredCount++
		case score.IsCorrect:
			score.PointsEarned = perQuestion
			out.CorrectCount++
		default:
			out.WrongCount++
		}

		out.QuestionScores[i] = score
	}

	out.OverallScore = float64(out.CorrectCount) * perQuestion
	return out
}
