package util

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes bounded exponential retry delays: base doubling
// per attempt, capped, with up to 25% jitter subtracted so concurrent
// retries spread out.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the given retry attempt (1-based).
func (p BackoffPolicy) Delay(attempt int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := int64(1); i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d - jitter
}
