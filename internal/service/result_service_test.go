package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/models"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/internal/repository"
)

func TestResultRecorderPersistAndRead(t *testing.T) {
	db := setupServiceDB(t, &models.WorksheetResult{}, &models.ErrorLog{})
	results := repository.NewWorksheetResultRepository(db)
	recorder := NewResultRecorder(results, repository.NewErrorLogRepository(db), "stub-model", testLogger())
	svc := NewResultService(results, testLogger())

	expected := "4"
	outcome := &pipeline.Outcome{
		RunID:         "run-1",
		TokenNo:       "T-1",
		WorksheetName: "<b>130</b>",
		Filenames:     []string{"a.png"},
		ImageURLs:     []string{"https://cdn.example.com/a.png"},
		Key:           &answerkey.Key{BookID: "7", WorksheetID: "130"},
		Result: grading.Result{
			OverallScore:  0,
			TotalPossible: 40,
			WrongCount:    1,
			GradedBy:      grading.GradedByReference,
			QuestionScores: []grading.QuestionScore{
				{QuestionNumber: 1, StudentAnswer: "5", ReferenceAnswer: &expected, MaxPoints: 40},
			},
		},
		Diagnostics: []string{"Incorrect answers: Q1: answered '5' instead of '4'"},
	}

	id, err := recorder.Persist(context.Background(), outcome)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := svc.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "130", stored.WorksheetName)
	require.Equal(t, "7", stored.BookID)
	require.Equal(t, "stub-model", stored.ModelUsed)
	require.Equal(t, 1, stored.ImagesCount)
	require.Equal(t, []string{"https://cdn.example.com/a.png"}, stored.ImageURLs)
	require.Len(t, stored.QuestionScores, 1)
	require.Equal(t, "4", *stored.QuestionScores[0].ReferenceAnswer)
	require.Equal(t, outcome.Diagnostics, stored.Diagnostics)

	list, meta, err := svc.ListByToken(context.Background(), "T-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(1), meta.Total)
	require.Equal(t, 20, meta.Limit)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrResultNotFound)

	_, _, err = svc.ListByToken(context.Background(), " ", 0, 0)
	require.ErrorIs(t, err, ErrTokenRequired)
}

func TestErrorLogAnalysis(t *testing.T) {
	db := setupServiceDB(t, &models.ErrorLog{})
	logs := repository.NewErrorLogRepository(db)
	recorder := NewResultRecorder(nil, logs, "stub-model", testLogger())
	svc := NewErrorLogService(logs, testLogger())

	req := pipeline.Request{RunID: "r", TokenNo: "T", WorksheetName: "130", Images: []pipeline.Image{{Filename: "a.png"}}}
	failures := []*pipeline.Failure{
		{Stage: pipeline.StateExtracting, Kind: pipeline.KindSalvage, Reason: "no JSON object found"},
		{Stage: pipeline.StateExtracting, Kind: pipeline.KindSalvage, Reason: "no JSON object found"},
		{Stage: pipeline.StateExtracting, Kind: pipeline.KindSalvage, Reason: "not a JSON object"},
		{Stage: pipeline.StateUploading, Kind: pipeline.KindUpload, Reason: "storage unavailable"},
	}
	for _, failure := range failures {
		recorder.RecordFailure(context.Background(), req, failure)
	}

	analysis, err := svc.Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 4, analysis.TotalErrors)
	require.Len(t, analysis.ErrorTypes, 2)

	salvageType := analysis.ErrorTypes[0]
	require.Equal(t, "SalvageError", salvageType.ErrorType)
	require.Equal(t, 3, salvageType.Count)
	require.Equal(t, 75.0, salvageType.Percentage)
	require.Equal(t, []string{"no JSON object found", "not a JSON object"}, salvageType.UniqueMessages)
	require.Equal(t, "extracting", salvageType.TopStages[0].Stage)

	require.Equal(t, 25.0, analysis.ErrorTypes[1].Percentage)

	t.Run("empty log", func(t *testing.T) {
		empty, err := NewErrorLogService(repository.NewErrorLogRepository(setupServiceDB(t, &models.ErrorLog{})), testLogger()).Analyze(context.Background(), nil)
		require.NoError(t, err)
		require.Zero(t, empty.TotalErrors)
		require.Empty(t, empty.ErrorTypes)
	})
}
