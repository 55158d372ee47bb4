package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/dto"
	"github.com/noah-isme/worksheet-grader/internal/repository"
)

const topStagesPerType = 5

// ErrorLogService analyses failed grading runs.
type ErrorLogService interface {
	Analyze(ctx context.Context, since *time.Time) (dto.ErrorLogAnalysis, error)
}

type errorLogService struct {
	repo   repository.ErrorLogRepository
	logger zerolog.Logger
}

// NewErrorLogService constructs an error log service.
func NewErrorLogService(repo repository.ErrorLogRepository, logger zerolog.Logger) ErrorLogService {
	return &errorLogService{
		repo:   repo,
		logger: logger.With().Str("component", "error_log_service").Logger(),
	}
}

// Analyze groups stored failures by error type. Types are ordered by count,
// most frequent first; each lists its distinct messages in first-seen order
// and the stages it occurred at most often.
func (s *errorLogService) Analyze(ctx context.Context, since *time.Time) (dto.ErrorLogAnalysis, error) {
	entries, err := s.repo.List(ctx, repository.ErrorLogFilter{Since: since})
	if err != nil {
		return dto.ErrorLogAnalysis{}, err
	}

	type bucket struct {
		summary  dto.ErrorTypeSummary
		seen     map[string]struct{}
		stages   map[string]int
		firstIdx int
	}

	buckets := map[string]*bucket{}
	for i, entry := range entries {
		b, ok := buckets[entry.ErrorType]
		if !ok {
			b = &bucket{
				summary:  dto.ErrorTypeSummary{ErrorType: entry.ErrorType, UniqueMessages: []string{}},
				seen:     map[string]struct{}{},
				stages:   map[string]int{},
				firstIdx: i,
			}
			buckets[entry.ErrorType] = b
		}
		b.summary.Count++
		if _, dup := b.seen[entry.Message]; !dup {
			b.seen[entry.Message] = struct{}{}
			b.summary.UniqueMessages = append(b.summary.UniqueMessages, entry.Message)
		}
		b.stages[entry.Stage]++
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].summary.Count != ordered[j].summary.Count {
			return ordered[i].summary.Count > ordered[j].summary.Count
		}
		return ordered[i].firstIdx < ordered[j].firstIdx
	})

	analysis := dto.ErrorLogAnalysis{
		TotalErrors: len(entries),
		ErrorTypes:  make([]dto.ErrorTypeSummary, 0, len(ordered)),
	}
	for _, b := range ordered {
		b.summary.Percentage = roundTo(float64(b.summary.Count)/float64(len(entries))*100, 2)
		b.summary.TopStages = topStages(b.stages, topStagesPerType)
		analysis.ErrorTypes = append(analysis.ErrorTypes, b.summary)
	}

	s.logger.Debug().Int("total_errors", analysis.TotalErrors).Int("error_types", len(analysis.ErrorTypes)).Msg("error log analysed")
	return analysis, nil
}

func topStages(counts map[string]int, limit int) []dto.StageCount {
	out := make([]dto.StageCount, 0, len(counts))
	for stage, count := range counts {
		out = append(out, dto.StageCount{Stage: stage, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Stage < out[j].Stage
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
