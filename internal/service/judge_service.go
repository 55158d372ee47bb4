package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/pkg/ai"
	"github.com/noah-isme/worksheet-grader/pkg/salvage"
)

// ErrEmptyJudgement indicates the judge returned no per-question scores.
var ErrEmptyJudgement = errors.New("judge returned no question scores")

const judgeSystemPrompt = `You grade primary school worksheets when no answer key is available.
For every numbered question decide the correct answer yourself and compare the student's answer with it.
Each question is worth the same number of points and is either fully correct or wrong; there is no partial credit.
A blank answer is unanswered and earns nothing.
Reply with one JSON object only:
{"question_scores": [{"question_number": 1, "question": "...", "student_answer": "...", "correct_answer": "...",
"points_earned": 1, "max_points": 1, "is_correct": true, "feedback": "one short sentence"}],
"overall_score": 1, "total_possible": 1, "overall_feedback": "one encouraging line", "reason_why": "one line"}`

// ModelJudge grades answers with a language model.
type ModelJudge struct {
	generator ai.Generator
	limiter   Limiter
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewModelJudge constructs a judge. limiter may be nil.
func NewModelJudge(generator ai.Generator, limiter Limiter, logger zerolog.Logger) *ModelJudge {
	return &ModelJudge{
		generator: generator,
		limiter:   limiter,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "model_judge").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/worksheet-grader/internal/service/judge"),
	}
}

type judgeReply struct {
	QuestionScores []struct {
		QuestionNumber int             `json:"question_number"`
		Question       json.RawMessage `json:"question"`
		StudentAnswer  json.RawMessage `json:"student_answer"`
		CorrectAnswer  json.RawMessage `json:"correct_answer"`
		PointsEarned   float64         `json:"points_earned"`
		MaxPoints      float64         `json:"max_points"`
		IsCorrect      bool            `json:"is_correct"`
		Feedback       string          `json:"feedback"`
	} `json:"question_scores"`
	OverallScore    float64 `json:"overall_score"`
	TotalPossible   float64 `json:"total_possible"`
	OverallFeedback string  `json:"overall_feedback"`
	ReasonWhy       string  `json:"reason_why"`
}

// Judge asks the model to grade entries. Student answers in the returned
// result are taken from entries, never from the model's echo.
func (j *ModelJudge) Judge(ctx context.Context, worksheetName string, entries []grading.CanonicalEntry) (grading.Result, error) {
	ctx, span := j.tracer.Start(ctx, "judge.grade", trace.WithAttributes(
		attribute.Int("judge.entries", len(entries)),
		attribute.String("judge.model", j.generator.Model()),
	))
	defer span.End()

	if j.limiter != nil {
		if err := j.limiter.Acquire(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter wait aborted")
			return grading.Result{}, err
		}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return grading.Result{}, err
	}

	reply, err := j.generator.Generate(ctx, ai.Prompt{
		System: judgeSystemPrompt,
		Text:   fmt.Sprintf("Worksheet %q. Student answers:\n%s", worksheetName, payload),
		JSON:   true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return grading.Result{}, fmt.Errorf("judge answers: %w", err)
	}

	var parsed judgeReply
	if err := salvage.Unmarshal(reply, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply not salvageable")
		return grading.Result{}, fmt.Errorf("parse judge reply: %w", err)
	}
	if len(parsed.QuestionScores) == 0 {
		span.RecordError(ErrEmptyJudgement)
		span.SetStatus(codes.Error, "empty judgement")
		return grading.Result{}, ErrEmptyJudgement
	}

	result := grading.Result{
		OverallScore:    parsed.OverallScore,
		TotalPossible:   parsed.TotalPossible,
		OverallFeedback: j.clean(parsed.OverallFeedback),
		ReasonWhy:       j.clean(parsed.ReasonWhy),
		QuestionScores:  make([]grading.QuestionScore, 0, len(parsed.QuestionScores)),
	}
	for i, item := range parsed.QuestionScores {
		score := grading.QuestionScore{
			QuestionNumber: item.QuestionNumber,
			QuestionText:   scalarText(item.Question),
			StudentAnswer:  scalarText(item.StudentAnswer),
			PointsEarned:   item.PointsEarned,
			MaxPoints:      item.MaxPoints,
			IsCorrect:      item.IsCorrect,
			Feedback:       j.clean(item.Feedback),
		}
		if score.QuestionNumber <= 0 {
			score.QuestionNumber = i + 1
		}
		if n := score.QuestionNumber; n <= len(entries) {
			score.StudentAnswer = entries[n-1].StudentAnswer
			if score.QuestionText == "" {
				score.QuestionText = entries[n-1].QuestionText
			}
		}
		if expected := scalarText(item.CorrectAnswer); expected != "" {
			score.ReferenceAnswer = &expected
		}
		result.QuestionScores = append(result.QuestionScores, score)
	}

	j.logger.Debug().Int("scores", len(result.QuestionScores)).Str("worksheet_name", worksheetName).Msg("judge reply parsed")
	return result, nil
}

func (j *ModelJudge) clean(text string) string {
	return strings.TrimSpace(j.sanitizer.Sanitize(text))
}
