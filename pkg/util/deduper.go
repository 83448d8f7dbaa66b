package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper collapses duplicate deliveries of the same deterministic job id.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire the dedup key for a job id.
// Returns true if this is the FIRST delivery, false for a duplicate.
// When redis is unavailable the deduper fails open: the pg job-state gate
// behind it still prevents double execution.
func (d *Deduper) AcquireOnce(ctx context.Context, jobID string) bool {
	key := "dedup:job:" + jobID

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated job",
			zap.String("job_id", jobID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release drops the dedup key so a job can be delivered again, used by
// DLQ replay to re-inject work that already ran once.
func (d *Deduper) Release(ctx context.Context, jobID string) {
	_ = d.rdb.Del(ctx, "dedup:job:"+jobID).Err()
}
