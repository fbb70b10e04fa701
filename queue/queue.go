// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"math"
	"sync"
	"time"

	"github.com/absmach/gamecast/message"
)

// DefaultMaxQueueSize caps total queued messages across all lanes.
const DefaultMaxQueueSize = 10000

const throttleWindow = time.Second

// Queue is the priority message buffer. Five FIFO lanes are drained in
// fixed priority order; admission is capped globally and throttled per
// lane over a sliding one-second window. All methods are non-blocking and
// safe for concurrent use; a single mutex guards the lanes, throttle
// windows and counters.
type Queue struct {
	mu sync.Mutex

	maxQueueSize int
	lanes        [len(message.Priorities)][]*Message
	total        int

	limits  [len(message.Priorities)]float64 // messages/second; +Inf = unlimited
	windows [len(message.Priorities)][]time.Time

	batchSize  int
	batchBytes int
	batchAge   time.Duration
	pending    *Batch

	queued    uint64
	processed uint64
	dropped   uint64
	throttled uint64
	batches   uint64

	now func() time.Time
}

// Options tunes a queue. Zero values fall back to defaults.
type Options struct {
	MaxQueueSize int
	BatchSize    int
	BatchBytes   int
	BatchMaxAge  time.Duration
}

// New creates a queue with the default per-lane throttle limits: Critical
// unlimited, then 100/50/20/5 messages per second.
func New(opts Options) *Queue {
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = DefaultMaxQueueSize
	}
	q := &Queue{
		maxQueueSize: opts.MaxQueueSize,
		batchSize:    opts.BatchSize,
		batchBytes:   opts.BatchBytes,
		batchAge:     opts.BatchMaxAge,
		now:          time.Now,
	}
	q.limits = [len(message.Priorities)]float64{
		message.Critical: math.Inf(1),
		message.High:     100,
		message.Normal:   50,
		message.Low:      20,
		message.Bulk:     5,
	}
	return q
}

// SetThrottleLimit overrides a lane's rate limit in messages per second.
// A non-positive limit makes the lane unlimited.
func (q *Queue) SetThrottleLimit(p message.Priority, perSecond float64) {
	if !p.Valid() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if perSecond <= 0 {
		perSecond = math.Inf(1)
	}
	q.limits[p] = perSecond
}

// Enqueue admits a message. It returns false when the global cap is hit
// (counted as dropped) or the lane's throttle window is full (counted as
// throttled). Back-pressure is global: no lane, Critical included, is
// exempt from the cap.
func (q *Queue) Enqueue(m *Message) bool {
	if m == nil || !m.Priority.Valid() {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.total >= q.maxQueueSize {
		q.dropped++
		return false
	}
	if !q.admitThrottleLocked(m.Priority) {
		q.throttled++
		return false
	}

	m.EnqueuedAt = q.now()
	m.EstimatedSize()

	q.lanes[m.Priority] = append(q.lanes[m.Priority], m)
	q.total++
	q.queued++
	return true
}

// DequeueBatch fills the pending batch in strict priority order and
// returns it once it reports ready; otherwise nil and the caller polls
// again. FIFO order within a lane is preserved.
func (q *Queue) DequeueBatch() *Batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if q.pending == nil {
		if q.total == 0 {
			return nil
		}
		q.pending = newBatch(q.batchSize, q.batchBytes, q.batchAge, now)
	}

	for _, p := range message.Priorities {
		for len(q.lanes[p]) > 0 && q.pending.canAdd(q.lanes[p][0]) {
			q.pending.add(q.popLocked(p))
			q.processed++
			if q.pending.ready(now) {
				return q.releaseLocked()
			}
		}
	}

	if q.pending.ready(now) || (q.pending.Len() > 0 && q.total == 0) {
		return q.releaseLocked()
	}
	return nil
}

// DequeueSingle removes the next message from one lane, or from the
// highest non-empty lane when priority is nil.
func (q *Queue) DequeueSingle(priority *message.Priority) *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if priority != nil {
		if !priority.Valid() || len(q.lanes[*priority]) == 0 {
			return nil
		}
		q.processed++
		return q.popLocked(*priority)
	}

	for _, p := range message.Priorities {
		if len(q.lanes[p]) > 0 {
			q.processed++
			return q.popLocked(p)
		}
	}
	return nil
}

// Peek returns the next message without removing it.
func (q *Queue) Peek(priority *message.Priority) *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if priority != nil {
		if !priority.Valid() || len(q.lanes[*priority]) == 0 {
			return nil
		}
		return q.lanes[*priority][0]
	}
	for _, p := range message.Priorities {
		if len(q.lanes[p]) > 0 {
			return q.lanes[p][0]
		}
	}
	return nil
}

// Size returns the number of queued messages, in one lane or in total.
// Messages already pulled into the pending batch no longer count.
func (q *Queue) Size(priority *message.Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if priority != nil {
		if !priority.Valid() {
			return 0
		}
		return len(q.lanes[*priority])
	}
	return q.total
}

// Clear discards queued messages in one lane, or everything including the
// pending batch when priority is nil.
func (q *Queue) Clear(priority *message.Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if priority != nil {
		if !priority.Valid() {
			return
		}
		q.total -= len(q.lanes[*priority])
		q.lanes[*priority] = nil
		return
	}
	for i := range q.lanes {
		q.lanes[i] = nil
	}
	q.total = 0
	q.pending = nil
}

// Statistics returns the queue counters and per-lane depths.
func (q *Queue) Statistics() map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()

	depths := make(map[string]int, len(message.Priorities))
	for _, p := range message.Priorities {
		depths[p.String()] = len(q.lanes[p])
	}
	pendingLen := 0
	if q.pending != nil {
		pendingLen = q.pending.Len()
	}
	return map[string]any{
		"queued":        q.queued,
		"processed":     q.processed,
		"dropped":       q.dropped,
		"throttled":     q.throttled,
		"batches":       q.batches,
		"depth":         q.total,
		"depth_by_lane": depths,
		"pending_batch": pendingLen,
	}
}

// Dropped returns the admission-cap rejection count.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Throttled returns the throttle rejection count.
func (q *Queue) Throttled() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.throttled
}

func (q *Queue) popLocked(p message.Priority) *Message {
	lane := q.lanes[p]
	m := lane[0]
	lane[0] = nil
	q.lanes[p] = lane[1:]
	q.total--
	return m
}

func (q *Queue) releaseLocked() *Batch {
	b := q.pending
	q.pending = nil
	q.batches++
	return b
}

// admitThrottleLocked records the admission timestamp in the lane's sliding
// window unless the window already holds the lane's limit.
func (q *Queue) admitThrottleLocked(p message.Priority) bool {
	limit := q.limits[p]
	if math.IsInf(limit, 1) {
		return true
	}

	now := q.now()
	cutoff := now.Add(-throttleWindow)
	w := q.windows[p]
	keep := 0
	for keep < len(w) && !w[keep].After(cutoff) {
		keep++
	}
	w = w[keep:]

	if float64(len(w)) >= limit {
		q.windows[p] = w
		return false
	}
	q.windows[p] = append(w, now)
	return true
}
