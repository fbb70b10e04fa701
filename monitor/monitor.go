// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package monitor collects lightweight runtime metrics from the
// distribution pipeline. It is a process-local aggregator, not an exporter;
// callers pull summaries and ship them wherever they like.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// Monitor receives named measurements from the pipeline. Implementations
// must be safe for concurrent use.
type Monitor interface {
	RecordEvent(name string, value float64, tags map[string]string)
	Summary() map[string]any
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordEvent(string, float64, map[string]string) {}

func (Nop) Summary() map[string]any { return map[string]any{} }

type series struct {
	count    uint64
	sum      float64
	min, max float64
	last     float64
	lastAt   time.Time
}

// Performance aggregates events per metric name: count, sum, min, max and
// the most recent value. Tags are folded into the series key so callers can
// split a metric per client or per kind without a label model.
type Performance struct {
	mu     sync.Mutex
	series map[string]*series
	now    func() time.Time
}

// NewPerformance creates an empty aggregator.
func NewPerformance() *Performance {
	return &Performance{
		series: make(map[string]*series),
		now:    time.Now,
	}
}

// RecordEvent folds one measurement into its series.
func (p *Performance) RecordEvent(name string, value float64, tags map[string]string) {
	key := seriesKey(name, tags)

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.series[key]
	if !ok {
		s = &series{min: value, max: value}
		p.series[key] = s
	}
	s.count++
	s.sum += value
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	s.last = value
	s.lastAt = p.now()
}

// Summary returns per-series aggregates keyed by metric name.
func (p *Performance) Summary() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]any, len(p.series))
	for key, s := range p.series {
		avg := 0.0
		if s.count > 0 {
			avg = s.sum / float64(s.count)
		}
		out[key] = map[string]any{
			"count": s.count,
			"sum":   s.sum,
			"avg":   avg,
			"min":   s.min,
			"max":   s.max,
			"last":  s.last,
		}
	}
	return out
}

// Reset drops all series.
func (p *Performance) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series = make(map[string]*series)
}

// seriesKey renders tags in a stable order so the same (name, tags) pair
// always lands in the same series.
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := name
	for _, k := range keys {
		key += "," + k + "=" + tags[k]
	}
	return key
}
