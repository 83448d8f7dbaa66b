package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter tracks delivery attempts per job id in redis so attempt
// counts survive worker restarts.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet increments the attempt count for a job and returns the
// new count.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, jobID string) (int64, error) {
	key := retryKey(jobID)
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Set expiration on first increment
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}

	return count, nil
}

// Reset clears the attempt count after a success or terminal failure.
func (r *RetryCounter) Reset(ctx context.Context, jobID string) error {
	return r.rdb.Del(ctx, retryKey(jobID)).Err()
}

func retryKey(jobID string) string {
	return "retry:job:" + jobID
}
