// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"log/slog"
	"sync/atomic"
)

// Manager runs the fixed filter chain Spatial → Chunk → Privacy →
// RateLimit → Relevance and short-circuits on the first Deny.
//
// A Modify result is counted and logged but the message is delivered
// unchanged: the behavior of composing multiple modifications is undefined,
// so no transformation is applied (known limitation).
type Manager struct {
	filters   []Filter
	stats     map[string]*Stats
	rateLimit *RateLimit
	logger    *slog.Logger

	evaluated atomic.Uint64
	allowed   atomic.Uint64
	denied    atomic.Uint64
}

// Config carries the tunables for the default chain.
type Config struct {
	MaxDistance  float64
	ChunkSize    int32
	ChunkRadius  int32
	DeliveryRate float64
	Logger       *slog.Logger
}

// NewManager builds the default chain.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rl := NewRateLimit(cfg.DeliveryRate)
	filters := []Filter{
		NewSpatial(cfg.MaxDistance),
		NewChunkScope(cfg.ChunkSize, cfg.ChunkRadius),
		NewPrivacy(),
		rl,
		NewRelevance(),
	}

	stats := make(map[string]*Stats, len(filters))
	for _, f := range filters {
		stats[f.Name()] = &Stats{}
	}

	return &Manager{
		filters:   filters,
		stats:     stats,
		rateLimit: rl,
		logger:    cfg.Logger,
	}
}

// ShouldDeliver evaluates the chain for one (message, client) pair.
func (m *Manager) ShouldDeliver(ctx Context) bool {
	m.evaluated.Add(1)

	for _, f := range m.filters {
		d := f.Decide(ctx)
		m.stats[f.Name()].record(d)

		switch d {
		case Deny:
			m.denied.Add(1)
			return false
		case Modify:
			m.logger.Debug("filter requested modify, delivering unchanged",
				slog.String("filter", f.Name()),
				slog.String("client_id", ctx.ClientID),
				slog.String("kind", string(ctx.Kind)))
		}
	}

	m.allowed.Add(1)
	return true
}

// RemoveClient drops per-client filter state (rate limiter buckets).
func (m *Manager) RemoveClient(clientID string) {
	m.rateLimit.RemoveClient(clientID)
}

// Statistics returns chain totals plus per-filter counters.
func (m *Manager) Statistics() map[string]any {
	perFilter := make(map[string]any, len(m.stats))
	for name, s := range m.stats {
		perFilter[name] = s.Snapshot()
	}
	return map[string]any{
		"evaluated": m.evaluated.Load(),
		"allowed":   m.allowed.Load(),
		"denied":    m.denied.Load(),
		"filters":   perFilter,
	}
}
