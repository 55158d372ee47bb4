package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/handler"
	"github.com/noah-isme/worksheet-grader/internal/middleware"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/internal/service"
)

type gradingServiceStub struct {
	lastReq   dto.ProcessWorksheetRequest
	fileCount int
	response  dto.ProcessWorksheetResponse
	err       error
}

func (s *gradingServiceStub) Process(_ context.Context, req dto.ProcessWorksheetRequest, files []*multipart.FileHeader) (dto.ProcessWorksheetResponse, error) {
	s.lastReq = req
	s.fileCount = len(files)
	if s.err != nil {
		return dto.ProcessWorksheetResponse{}, s.err
	}
	return s.response, nil
}

type resultServiceStub struct {
	items     []dto.WorksheetResultResponse
	lastToken string
	lastLimit int
}

func (s *resultServiceStub) Get(_ context.Context, runID string) (dto.WorksheetResultResponse, error) {
	for _, item := range s.items {
		if item.RunID == runID {
			return item, nil
		}
	}
	return dto.WorksheetResultResponse{}, service.ErrResultNotFound
}

func (s *resultServiceStub) ListByToken(_ context.Context, tokenNo string, limit, offset int) ([]dto.WorksheetResultResponse, dto.PaginationMeta, error) {
	s.lastToken = tokenNo
	s.lastLimit = limit
	if tokenNo == "" {
		return nil, dto.PaginationMeta{}, service.ErrTokenRequired
	}
	return s.items, dto.PaginationMeta{Total: int64(len(s.items)), Limit: 20, Offset: offset}, nil
}

func gradedResponse() dto.ProcessWorksheetResponse {
	reference := "4"
	outcome := &pipeline.Outcome{
		RunID:         "run-abc",
		TokenNo:       "T-001",
		WorksheetName: "Book7-Worksheet130",
		Filenames:     []string{"page1.png"},
		ImageURLs:     []string{"file:///tmp/page1.png"},
		Entries:       []grading.CanonicalEntry{{QuestionNumber: 1, StudentAnswer: "4"}},
		Result: grading.Result{
			QuestionScores: []grading.QuestionScore{{
				QuestionNumber:  1,
				StudentAnswer:   "4",
				ReferenceAnswer: &reference,
				PointsEarned:    40,
				MaxPoints:       40,
				IsCorrect:       true,
			}},
			OverallScore:  40,
			TotalPossible: grading.TotalPossible,
			CorrectCount:  1,
			GradedBy:      grading.GradedByReference,
		},
		ResultID: "1",
	}
	processed := dto.NewProcessedWorksheet(outcome, "stub-model")
	return dto.ProcessWorksheetResponse{
		Success:              true,
		ProcessedCount:       1,
		Processed:            []dto.ProcessedWorksheet{processed},
		Errors:               []dto.FailedWorksheet{},
		ModelUsed:            "stub-model",
		TotalImagesProcessed: 1,
	}
}

func newWorksheetApp(grading service.GradingService, results service.ResultService) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewWorksheetHandler(grading, results, zerolog.New(io.Discard)).Register(app.Group("/api/v1/worksheets"))
	return app
}

func multipartRequest(t *testing.T, fields map[string]string, files ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, name := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/worksheets/process", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestWorksheetHandlerProcessMatchesContract(t *testing.T) {
	svc := &gradingServiceStub{response: gradedResponse()}
	app := newWorksheetApp(svc, &resultServiceStub{})

	req := multipartRequest(t, map[string]string{"token_no": "T-001", "worksheet_name": "Book7-Worksheet130"}, "page1.png", "page2.png")
	req.Header.Set("X-Correlation-ID", "run-abc")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, "T-001", svc.lastReq.TokenNo)
	require.Equal(t, "Book7-Worksheet130", svc.lastReq.WorksheetName)
	require.Equal(t, "run-abc", svc.lastReq.RunID)
	require.Equal(t, 2, svc.fileCount)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "process_worksheet.schema.json"))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestWorksheetHandlerProcessReportsFailedRun(t *testing.T) {
	svc := &gradingServiceStub{response: dto.ProcessWorksheetResponse{
		Processed:  []dto.ProcessedWorksheet{},
		ErrorCount: 1,
		Errors: []dto.FailedWorksheet{{
			RunID:     "run-x",
			Stage:     string(pipeline.StateExtracting),
			ErrorType: string(pipeline.KindSalvage),
			Error:     "extraction response could not be parsed",
		}},
		ModelUsed: "stub-model",
	}}
	app := newWorksheetApp(svc, &resultServiceStub{})

	resp, err := app.Test(multipartRequest(t, map[string]string{"token_no": "T", "worksheet_name": "W"}, "a.png"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var payload struct {
		Success bool                         `json:"success"`
		Data    dto.ProcessWorksheetResponse `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)
	require.Len(t, payload.Data.Errors, 1)
	require.Equal(t, "extracting", payload.Data.Errors[0].Stage)
	require.Equal(t, "SalvageError", payload.Data.Errors[0].ErrorType)
}

func TestWorksheetHandlerProcessErrorMapping(t *testing.T) {
	validationErr := validator.New().Struct(dto.ProcessWorksheetRequest{})
	require.Error(t, validationErr)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: validationErr, status: fiber.StatusBadRequest},
		{name: "no images", err: service.ErrImageRequired, status: fiber.StatusBadRequest},
		{name: "too many images", err: service.ErrTooManyImages, status: fiber.StatusBadRequest},
		{name: "too large", err: service.ErrUploadTooLarge, status: fiber.StatusRequestEntityTooLarge},
		{name: "bad type", err: service.ErrImageTypeNotAllowed, status: fiber.StatusUnsupportedMediaType},
		{name: "unexpected", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newWorksheetApp(&gradingServiceStub{err: tc.err}, &resultServiceStub{})
			resp, err := app.Test(multipartRequest(t, map[string]string{"token_no": "T", "worksheet_name": "W"}, "a.png"), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestWorksheetHandlerValidationDetails(t *testing.T) {
	validationErr := validator.New().Struct(dto.ProcessWorksheetRequest{WorksheetName: "W"})
	app := newWorksheetApp(&gradingServiceStub{err: validationErr}, &resultServiceStub{})

	resp, err := app.Test(multipartRequest(t, map[string]string{"worksheet_name": "W"}, "a.png"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Details map[string]string `json:"details"`
	}
	decodeResponse(t, resp, &payload)
	require.Equal(t, "required", payload.Details["token_no"])
}

func TestWorksheetHandlerProcessRequiresMultipart(t *testing.T) {
	svc := &gradingServiceStub{}
	app := newWorksheetApp(svc, &resultServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/worksheets/process", bytes.NewBufferString(`{"token_no":"T"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.fileCount)
}

func TestWorksheetHandlerResults(t *testing.T) {
	results := &resultServiceStub{items: []dto.WorksheetResultResponse{
		{ID: 1, RunID: "run-1", TokenNo: "T-001", OverallScore: 40, TotalPossible: 40},
	}}
	app := newWorksheetApp(&gradingServiceStub{}, results)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/results?token_no=T-001&limit=5", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "T-001", results.lastToken)
	require.Equal(t, 5, results.lastLimit)

	var list struct {
		Data []dto.WorksheetResultResponse `json:"data"`
		Meta dto.PaginationMeta            `json:"meta"`
	}
	decodeResponse(t, resp, &list)
	require.Len(t, list.Data, 1)
	require.Equal(t, int64(1), list.Meta.Total)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/results", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/results?token_no=T&limit=abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/results/run-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/results/missing", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}
