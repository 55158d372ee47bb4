package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/worksheet-grader/internal/models"
)

func TestWorksheetResultRepositoryCreateAndFind(t *testing.T) {
	db := setupTestDB(t, &models.WorksheetResult{})
	repo := NewWorksheetResultRepository(db)

	result := models.WorksheetResult{
		RunID:          "run-1",
		TokenNo:        "T-1",
		WorksheetName:  "130",
		BookID:         "7",
		WorksheetID:    "130",
		OverallScore:   40,
		TotalPossible:  40,
		CorrectCount:   1,
		GradedBy:       "reference",
		QuestionScores: datatypes.JSON(`[{"question_number":1,"is_correct":true}]`),
		ImageURLs:      datatypes.JSON(`["https://cdn.example.com/a.png"]`),
	}
	require.NoError(t, repo.Create(context.Background(), &result))
	require.NotZero(t, result.ID)

	stored, err := repo.FindByRunID(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 40.0, stored.OverallScore)
	require.JSONEq(t, `["https://cdn.example.com/a.png"]`, string(stored.ImageURLs))

	_, err = repo.FindByRunID(context.Background(), "missing")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestWorksheetResultRepositoryListByToken(t *testing.T) {
	db := setupTestDB(t, &models.WorksheetResult{})
	repo := NewWorksheetResultRepository(db)

	now := time.Now()
	rows := []models.WorksheetResult{
		{RunID: "a", TokenNo: "T-1", WorksheetName: "130", GradedBy: "reference", CreatedAt: now.Add(-2 * time.Hour)},
		{RunID: "b", TokenNo: "T-1", WorksheetName: "131", GradedBy: "judge", CreatedAt: now},
		{RunID: "c", TokenNo: "T-2", WorksheetName: "130", GradedBy: "reference", CreatedAt: now},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	items, total, err := repo.ListByToken(context.Background(), "T-1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	require.Equal(t, "b", items[0].RunID, "newest result first")

	paged, total, err := repo.ListByToken(context.Background(), "T-1", 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, paged, 1)
	require.Equal(t, "a", paged[0].RunID)
}

func TestErrorLogRepositoryList(t *testing.T) {
	db := setupTestDB(t, &models.ErrorLog{})
	repo := NewErrorLogRepository(db)

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	require.NoError(t, db.Create(&models.ErrorLog{RunID: "1", Stage: "extracting", ErrorType: "SalvageError", CreatedAt: old}).Error)
	require.NoError(t, repo.Create(context.Background(), &models.ErrorLog{RunID: "2", Stage: "uploading", ErrorType: "UploadError"}))
	require.NoError(t, repo.Create(context.Background(), &models.ErrorLog{RunID: "3", Stage: "extracting", ErrorType: "ExtractionError"}))

	all, err := repo.List(context.Background(), ErrorLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "1", all[0].RunID)

	since := now.Add(-time.Hour)
	recent, err := repo.List(context.Background(), ErrorLogFilter{Since: &since, Stage: "extracting"})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "3", recent[0].RunID)
}

func setupTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))
	return db
}
