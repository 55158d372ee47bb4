package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/grading"
	"github.com/noah-isme/worksheet-grader/internal/observability"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
)

const (
	extractionCachePrefix = "grader:extraction:"
	defaultExtractionTTL  = 24 * time.Hour
)

type redisExtractionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisExtractionCache stores extraction replies in Redis for ttl.
func NewRedisExtractionCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) ExtractionCache {
	if ttl <= 0 {
		ttl = defaultExtractionTTL
	}
	return &redisExtractionCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "extraction_cache").Logger(),
	}
}

func (c *redisExtractionCache) Get(ctx context.Context, key string) ([]grading.ExtractedEntry, bool) {
	payload, err := c.client.Get(ctx, extractionCachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("extraction cache read failed")
			observability.ExtractionCache().WithLabelValues("error").Inc()
			return nil, false
		}
		observability.ExtractionCache().WithLabelValues("miss").Inc()
		return nil, false
	}

	var entries []grading.ExtractedEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		c.logger.Warn().Err(err).Msg("discarding corrupt extraction cache entry")
		observability.ExtractionCache().WithLabelValues("error").Inc()
		return nil, false
	}

	observability.ExtractionCache().WithLabelValues("hit").Inc()
	return entries, true
}

func (c *redisExtractionCache) Set(ctx context.Context, key string, entries []grading.ExtractedEntry) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, extractionCachePrefix+key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("extraction cache write failed")
	}
}

// ExtractionKey identifies a submission by model, worksheet name and the
// content of its images in order.
func ExtractionKey(model, worksheetName string, images []pipeline.Image) string {
	hasher := sha256.New()
	hasher.Write([]byte(model))
	hasher.Write([]byte{0})
	hasher.Write([]byte(worksheetName))
	for _, img := range images {
		sum := sha256.Sum256(img.Data)
		hasher.Write([]byte{0})
		hasher.Write(sum[:])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
