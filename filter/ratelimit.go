// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultDeliveryRate is the per-client delivery cap in messages/second.
const DefaultDeliveryRate = 10.0

// RateLimit caps how many messages are delivered to a single client per
// second, independent of the queue's per-lane admission throttle. Each
// client gets its own limiter, created lazily and dropped on disconnect.
type RateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimit creates the delivery rate limiter. A non-positive perSecond
// falls back to DefaultDeliveryRate.
func NewRateLimit(perSecond float64) *RateLimit {
	if perSecond <= 0 {
		perSecond = DefaultDeliveryRate
	}
	// Fractional rates must still leave a burst of one, or every delivery
	// would be denied.
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (f *RateLimit) Name() string { return "ratelimit" }

func (f *RateLimit) Decide(ctx Context) Decision {
	f.mu.Lock()
	limiter, ok := f.limiters[ctx.ClientID]
	if !ok {
		limiter = rate.NewLimiter(f.limit, f.burst)
		f.limiters[ctx.ClientID] = limiter
	}
	f.mu.Unlock()

	if !limiter.AllowN(ctx.Timestamp, 1) {
		return Deny
	}
	return Allow
}

// RemoveClient drops the limiter state for a disconnected client.
func (f *RateLimit) RemoveClient(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.limiters, clientID)
}
