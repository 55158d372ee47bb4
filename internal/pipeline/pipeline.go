package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/observability"
	"github.com/noah-isme/worksheet-grader/pkg/salvage"
)

const defaultWorkers = 5

// Image is one uploaded worksheet page.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Request is one worksheet submission.
type Request struct {
	RunID         string
	TokenNo       string
	WorksheetName string
	Images        []Image
}

// Filenames lists image names in submission order.
func (r Request) Filenames() []string {
	names := make([]string, len(r.Images))
	for i, img := range r.Images {
		names[i] = img.Filename
	}
	return names
}

// Storage stores an image and returns where it can be fetched.
type Storage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// Extractor reads question/answer pairs from all images in one call.
type Extractor interface {
	Extract(ctx context.Context, images []Image, worksheetName string) ([]grading.ExtractedEntry, error)
}

// Judge grades entries when no answer key is available.
type Judge interface {
	Judge(ctx context.Context, worksheetName string, entries []grading.CanonicalEntry) (grading.Result, error)
}

// AnswerKey resolves worksheet names and returns reference answers.
type AnswerKey interface {
	answerkey.Lookup
	Answers(key answerkey.Key) (answerkey.AnswerSet, bool)
}

// Persister stores a finished outcome and returns its identifier.
type Persister interface {
	Persist(ctx context.Context, outcome *Outcome) (string, error)
}

// FailureRecorder stores runs that failed after being accepted.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, req Request, failure *Failure)
}

// Dependencies are the collaborators of a Pipeline. Storage and Extractor
// are required.
type Dependencies struct {
	Storage   Storage
	Extractor Extractor
	Judge     Judge
	AnswerKey AnswerKey
	Persister Persister
	Failures  FailureRecorder
	Observer  Observer
}

// Outcome is the result of a successful run.
type Outcome struct {
	RunID          string                   `json:"run_id"`
	TokenNo        string                   `json:"token_no"`
	WorksheetName  string                   `json:"worksheet_name"`
	Filenames      []string                 `json:"image_filenames"`
	ImageURLs      []string                 `json:"image_urls"`
	ExtractedCount int                      `json:"extracted_count"`
	Entries        []grading.CanonicalEntry `json:"entries"`
	Key            *answerkey.Key           `json:"answer_key,omitempty"`
	Result         grading.Result           `json:"result"`
	Diagnostics    []string                 `json:"zero_marks_diagnostics,omitempty"`
	Warnings       []Warning                `json:"warnings,omitempty"`
	ResultID       string                   `json:"result_id,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
}

// ImagesCount reports how many images were graded.
func (o *Outcome) ImagesCount() int {
	return len(o.Filenames)
}

func (o *Outcome) warn(kind ErrorKind, format string, args ...any) {
	o.Warnings = append(o.Warnings, Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Pipeline grades worksheet submissions. A Pipeline keeps no per-run state
// and may serve concurrent runs.
type Pipeline struct {
	deps    Dependencies
	workers int
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// New constructs a Pipeline. workers bounds concurrent uploads per run.
func New(deps Dependencies, workers int, logger zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Pipeline{
		deps:    deps,
		workers: workers,
		logger:  logger.With().Str("component", "grading_pipeline").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/worksheet-grader/internal/pipeline"),
		now:     time.Now,
	}
}

type resolution struct {
	key   answerkey.Key
	set   answerkey.AnswerSet
	found bool
}

// Run takes one submission through upload, extraction, resolution,
// deduplication, grading and persistence. Any stage failure other than
// persistence aborts the run with a *Failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", req.RunID),
		attribute.String("worksheet.name", req.WorksheetName),
		attribute.Int("worksheet.images", len(req.Images)),
	))
	defer span.End()

	logger := p.logger.With().Str("run_id", req.RunID).Str("worksheet_name", req.WorksheetName).Logger()

	outcome := &Outcome{
		RunID:         req.RunID,
		TokenNo:       req.TokenNo,
		WorksheetName: req.WorksheetName,
		Filenames:     req.Filenames(),
		StartedAt:     p.now().UTC(),
	}

	fail := func(stage State, kind ErrorKind, err error) (*Outcome, error) {
		failure := newFailure(stage, kind, err)
		span.RecordError(failure)
		span.SetStatus(codes.Error, string(kind))
		logger.Error().Err(err).Str("stage", string(stage)).Str("kind", string(kind)).Msg("grading run failed")
		p.emit(ctx, Event{RunID: req.RunID, State: StateFailed, Stage: stage, Kind: kind, Message: failure.Reason})
		observability.PipelineRuns().WithLabelValues(string(StateFailed), "").Inc()
		if p.deps.Failures != nil {
			p.deps.Failures.RecordFailure(context.WithoutCancel(ctx), req, failure)
		}
		return nil, failure
	}

	if p.deps.Storage == nil || p.deps.Extractor == nil {
		return nil, errors.New("pipeline: storage and extractor are required")
	}
	if len(req.Images) == 0 {
		return fail(StateUploading, KindUpload, ErrNoImages)
	}

	stageStart := p.enter(ctx, req.RunID, StateUploading)
	urls, err := p.upload(ctx, req.Images)
	p.leave(StateUploading, stageStart)
	if err != nil {
		return fail(StateUploading, KindUpload, err)
	}
	outcome.ImageURLs = urls

	stageStart = p.enter(ctx, req.RunID, StateExtracting)
	var (
		extracted []grading.ExtractedEntry
		resolved  resolution
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		entries, err := p.deps.Extractor.Extract(groupCtx, req.Images, req.WorksheetName)
		if err != nil {
			return err
		}
		extracted = entries
		return nil
	})
	group.Go(func() error {
		resolveStart := p.enter(groupCtx, req.RunID, StateResolving)
		resolved = p.resolve(req.WorksheetName)
		p.leave(StateResolving, resolveStart)
		return nil
	})
	err = group.Wait()
	p.leave(StateExtracting, stageStart)
	if err != nil {
		if errors.Is(err, salvage.ErrUnsalvageable) {
			return fail(StateExtracting, KindSalvage, err)
		}
		return fail(StateExtracting, KindExtraction, err)
	}
	if len(extracted) == 0 {
		return fail(StateExtracting, KindExtraction, ErrNoEntries)
	}
	outcome.ExtractedCount = len(extracted)

	stageStart = p.enter(ctx, req.RunID, StateDeduplicating)
	if len(req.Images) > 1 {
		outcome.Entries = grading.Deduplicate(extracted)
	} else {
		outcome.Entries = grading.Canonicalize(extracted)
	}
	p.leave(StateDeduplicating, stageStart)
	logger.Debug().Int("extracted", len(extracted)).Int("canonical", len(outcome.Entries)).Msg("entries reconciled")

	stageStart = p.enter(ctx, req.RunID, StateGrading)
	if resolved.found {
		key := resolved.key
		outcome.Key = &key
		outcome.Result = grading.Grade(outcome.Entries, resolved.set.References)
		if gap, mismatched := grading.Alignment(outcome.Entries, resolved.set.References); mismatched {
			outcome.warn(KindAlignmentGap, "%d answers graded against %d reference answers", gap.Entries, gap.References)
			logger.Warn().Int("entries", gap.Entries).Int("references", gap.References).Msg("answer count does not match answer key")
		}
	} else {
		if !resolved.key.IsZero() {
			outcome.warn(KindResolutionMiss, "no answer key for %s", resolved.key)
		} else {
			outcome.warn(KindResolutionMiss, "worksheet %q did not match any answer key", req.WorksheetName)
		}
		logger.Info().Msg("no answer key resolved, using judge")

		if p.deps.Judge == nil {
			p.leave(StateGrading, stageStart)
			return fail(StateGrading, KindGrading, ErrNoJudge)
		}
		judged, err := p.deps.Judge.Judge(ctx, req.WorksheetName, outcome.Entries)
		if err != nil {
			p.leave(StateGrading, stageStart)
			return fail(StateGrading, KindGrading, err)
		}
		outcome.Result = grading.Reconcile(judged)
	}
	outcome.Diagnostics = grading.Diagnose(outcome.Result)
	p.leave(StateGrading, stageStart)

	if p.deps.Persister != nil {
		stageStart = p.enter(ctx, req.RunID, StatePersisting)
		id, err := p.deps.Persister.Persist(context.WithoutCancel(ctx), outcome)
		p.leave(StatePersisting, stageStart)
		if err != nil {
			outcome.warn(KindPersistence, "%v", err)
			span.RecordError(err)
			logger.Warn().Err(err).Msg("failed to persist grading result")
		} else {
			outcome.ResultID = id
		}
	}

	outcome.FinishedAt = p.now().UTC()
	p.emit(ctx, Event{RunID: req.RunID, State: StateDone})
	observability.PipelineRuns().WithLabelValues(string(StateDone), outcome.Result.GradedBy).Inc()
	span.SetAttributes(
		attribute.Float64("result.overall_score", outcome.Result.OverallScore),
		attribute.String("result.graded_by", outcome.Result.GradedBy),
	)
	span.SetStatus(codes.Ok, "graded")

	logger.Info().
		Float64("overall_score", outcome.Result.OverallScore).
		Int("correct", outcome.Result.CorrectCount).
		Int("wrong", outcome.Result.WrongCount).
		Int("unanswered", outcome.Result.UnansweredCount).
		Str("graded_by", outcome.Result.GradedBy).
		Msg("worksheet graded")

	return outcome, nil
}

// upload stores every image with at most p.workers uploads in flight. The
// first failure cancels the rest.
func (p *Pipeline) upload(ctx context.Context, images []Image) ([]string, error) {
	urls := make([]string, len(images))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for i, img := range images {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			url, err := p.deps.Storage.Upload(groupCtx, img.Filename, bytes.NewReader(img.Data))
			if err != nil {
				return fmt.Errorf("upload %s: %w", img.Filename, err)
			}
			urls[i] = url
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (p *Pipeline) resolve(name string) resolution {
	if p.deps.AnswerKey == nil {
		return resolution{}
	}

	key, ok := answerkey.Resolve(name, p.deps.AnswerKey)
	if !ok {
		return resolution{}
	}
	set, found := p.deps.AnswerKey.Answers(key)
	return resolution{key: key, set: set, found: found}
}

func (p *Pipeline) enter(ctx context.Context, runID string, state State) time.Time {
	p.emit(ctx, Event{RunID: runID, State: state})
	return p.now()
}

func (p *Pipeline) leave(state State, started time.Time) {
	observability.StageDuration().WithLabelValues(string(state)).Observe(p.now().Sub(started).Seconds())
}

func (p *Pipeline) emit(ctx context.Context, event Event) {
	if p.deps.Observer == nil {
		return
	}
	if event.At.IsZero() {
		event.At = p.now().UTC()
	}
	p.deps.Observer.Observe(ctx, event)
}
