package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, Cap: 30 * time.Second}

	tests := []struct {
		attempt int64
		max     time.Duration
	}{
		{attempt: 1, max: 2 * time.Second},
		{attempt: 2, max: 4 * time.Second},
		{attempt: 3, max: 8 * time.Second},
		{attempt: 10, max: 30 * time.Second}, // capped
		{attempt: 0, max: 2 * time.Second},   // clamped to first attempt
	}

	for _, tt := range tests {
		d := p.Delay(tt.attempt)
		assert.LessOrEqual(t, d, tt.max, "attempt %d", tt.attempt)
		// Jitter subtracts at most a quarter.
		assert.GreaterOrEqual(t, d, tt.max*3/4, "attempt %d", tt.attempt)
	}
}
