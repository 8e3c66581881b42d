package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/util"
)

const ingestLimitPrefix = "ingest_limit:"

// IngestLimiter caps telemetry submissions per source over a fixed window.
// Counters live in Redis so the limit holds across instances. The limiter
// fails open: if Redis is unreachable the submission is allowed, since
// dropping telemetry is worse than briefly losing the cap.
type IngestLimiter struct {
	client *client.RedisClient
	limit  int64
	window time.Duration
}

func NewIngestLimiter(redisClient *client.RedisClient, cfg *config.Config) *IngestLimiter {
	return &IngestLimiter{
		client: redisClient,
		limit:  int64(cfg.Ingest.RateLimit),
		window: cfg.Ingest.RateLimitWindow,
	}
}

// Allow counts one submission from the given source and reports whether it
// is within the window's limit.
func (l *IngestLimiter) Allow(ctx context.Context, source string) bool {
	if l.client == nil || l.limit <= 0 || source == "" {
		return true
	}

	count, err := l.client.IncrWithExpire(ctx, ingestLimitPrefix+source, l.window)
	if err != nil {
		util.Warn("Rate limit counter unavailable, allowing request",
			zap.String("source", source),
			zap.Error(err))
		return true
	}

	if count > l.limit {
		util.Debug("Ingest rate limit exceeded",
			zap.String("source", source),
			zap.Int64("count", count),
			zap.Int64("limit", l.limit))
		return false
	}
	return true
}
