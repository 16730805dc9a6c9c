package inference

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

type rateBucket struct {
	tokens       float64
	capacity     float64
	refillPerSec float64
	lastRefill   time.Time
}

// Limited applies a per-model requests-per-minute budget in front of a
// client. Calls over budget fail immediately with ErrThrottled.
type Limited struct {
	next Client
	rpm  int
	now  func() time.Time

	mu      sync.Mutex
	buckets map[string]*rateBucket
}

func NewLimited(next Client, rpm int) *Limited {
	return &Limited{
		next:    next,
		rpm:     rpm,
		now:     func() time.Time { return time.Now().UTC() },
		buckets: make(map[string]*rateBucket),
	}
}

func (l *Limited) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	if l.rpm > 0 {
		if ok, retry := l.allow(modelID); !ok {
			return nil, newError(ErrThrottled, modelID, fmt.Sprintf("retry in %ds", retry))
		}
	}
	return l.next.Invoke(ctx, modelID, payload)
}

func (l *Limited) allow(modelID string) (bool, int) {
	now := l.now()
	capacity := float64(l.rpm)
	refillPerSec := capacity / 60.0

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[modelID]
	if !ok {
		l.buckets[modelID] = &rateBucket{
			tokens:       capacity - 1,
			capacity:     capacity,
			refillPerSec: refillPerSec,
			lastRefill:   now,
		}
		return true, 0
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	if elapsed > 0 {
		bucket.tokens = math.Min(bucket.capacity, bucket.tokens+(elapsed*bucket.refillPerSec))
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens -= 1
		return true, 0
	}

	deficit := 1 - bucket.tokens
	retrySeconds := int(math.Ceil(deficit / bucket.refillPerSec))
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	return false, retrySeconds
}
