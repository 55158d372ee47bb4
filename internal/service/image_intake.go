package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/worksheet-grader/internal/observability"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
)

var (
	// ErrImageRequired indicates a submission without files.
	ErrImageRequired = errors.New("at least one worksheet image is required")
	// ErrTooManyImages indicates more files than allowed in one submission.
	ErrTooManyImages = errors.New("too many worksheet images")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrImageTypeNotAllowed indicates the file is not a supported image.
	ErrImageTypeNotAllowed = errors.New("file type not allowed")
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},
	"image/gif":  {},
}

// ImageIntake validates uploaded files and loads them as pipeline images.
type ImageIntake interface {
	Read(ctx context.Context, files []*multipart.FileHeader) ([]pipeline.Image, error)
}

type imageIntake struct {
	maxSize  int64
	maxFiles int
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewImageIntake constructs an intake accepting at most maxFiles images of
// maxSizeMB each.
func NewImageIntake(maxSizeMB, maxFiles int, logger zerolog.Logger) ImageIntake {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 10
	}
	return &imageIntake{
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
		logger:   logger.With().Str("component", "image_intake").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/worksheet-grader/internal/service/intake"),
	}
}

func (s *imageIntake) Read(ctx context.Context, files []*multipart.FileHeader) ([]pipeline.Image, error) {
	_, span := s.tracer.Start(ctx, "intake.read", trace.WithAttributes(
		attribute.Int("intake.files", len(files)),
		attribute.Int64("intake.max_bytes", s.maxSize),
	))
	defer span.End()

	if len(files) == 0 {
		span.SetStatus(codes.Error, "no files")
		return nil, ErrImageRequired
	}
	if len(files) > s.maxFiles {
		observability.ImagesRejected().WithLabelValues("count").Inc()
		span.SetStatus(codes.Error, "too many files")
		return nil, fmt.Errorf("%w: %d files, at most %d allowed", ErrTooManyImages, len(files), s.maxFiles)
	}

	images := make([]pipeline.Image, 0, len(files))
	for _, file := range files {
		img, err := s.readOne(file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "file rejected")
			return nil, err
		}
		images = append(images, img)
	}

	span.SetStatus(codes.Ok, "accepted")
	return images, nil
}

func (s *imageIntake) readOne(file *multipart.FileHeader) (pipeline.Image, error) {
	if file == nil {
		return pipeline.Image{}, ErrImageRequired
	}
	if file.Size > s.maxSize {
		observability.ImagesRejected().WithLabelValues("size").Inc()
		return pipeline.Image{}, fmt.Errorf("%s: %w", file.Filename, ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		return pipeline.Image{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return pipeline.Image{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.ImagesRejected().WithLabelValues("size").Inc()
		return pipeline.Image{}, fmt.Errorf("%s: %w", file.Filename, ErrUploadTooLarge)
	}

	detected := strings.ToLower(mimetype.Detect(buf.Bytes()).String())
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	if _, ok := allowedImageTypes[detected]; !ok {
		observability.ImagesRejected().WithLabelValues("type").Inc()
		s.logger.Debug().Str("filename", file.Filename).Str("mime", detected).Msg("rejected non-image upload")
		return pipeline.Image{}, fmt.Errorf("%s (%s): %w", file.Filename, detected, ErrImageTypeNotAllowed)
	}

	return pipeline.Image{
		Filename: sanitizeFileName(file.Filename),
		MIMEType: detected,
		Data:     buf.Bytes(),
	}, nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("worksheet-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
