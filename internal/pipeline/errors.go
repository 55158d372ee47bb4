package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies what went wrong in a run.
type ErrorKind string

const (
	KindUpload         ErrorKind = "UploadError"
	KindExtraction     ErrorKind = "ExtractionError"
	KindSalvage        ErrorKind = "SalvageError"
	KindResolutionMiss ErrorKind = "ResolutionMiss"
	KindAlignmentGap   ErrorKind = "AlignmentGap"
	KindGrading        ErrorKind = "GradingError"
	KindPersistence    ErrorKind = "PersistenceError"
)

var (
	// ErrNoImages indicates a request without any worksheet image.
	ErrNoImages = errors.New("at least one worksheet image is required")
	// ErrNoEntries indicates extraction succeeded but found no questions.
	ErrNoEntries = errors.New("no questions extracted from worksheet images")
	// ErrNoJudge indicates no answer key resolved and no judge is configured.
	ErrNoJudge = errors.New("no answer key found and no judge configured")

	ErrUpload      = errors.New("image upload failed")
	ErrExtraction  = errors.New("answer extraction failed")
	ErrSalvage     = errors.New("extraction response could not be parsed")
	ErrGrading     = errors.New("grading failed")
	ErrPersistence = errors.New("result persistence failed")
)

var kindSentinels = map[ErrorKind]error{
	KindUpload:      ErrUpload,
	KindExtraction:  ErrExtraction,
	KindSalvage:     ErrSalvage,
	KindGrading:     ErrGrading,
	KindPersistence: ErrPersistence,
}

// Failure is returned by Run when a stage aborts the run.
type Failure struct {
	Stage  State
	Kind   ErrorKind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %s", f.Stage, f.Kind, f.Reason)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[f.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// Warning is a recoverable problem attached to a successful outcome.
type Warning struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func newFailure(stage State, kind ErrorKind, err error) *Failure {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return &Failure{Stage: stage, Kind: kind, Reason: reason, Err: err}
}
