// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broadcast

import "sync/atomic"

// Stats holds the distribution loop counters. All fields are updated with
// atomics so readers never block the loop.
type Stats struct {
	Accepted   atomic.Uint64 // messages admitted into the queue
	Rejected   atomic.Uint64 // messages the queue refused
	Batches    atomic.Uint64 // batches drained
	Sent       atomic.Uint64 // successful link sends
	SendErrors atomic.Uint64 // failed or breaker-rejected sends
	Filtered   atomic.Uint64 // (message, client) pairs denied by the chain
	BytesOut   atomic.Uint64 // frame bytes handed to links
	Retries    atomic.Uint64 // reliable re-enqueues
	Abandoned  atomic.Uint64 // reliable messages dropped after max attempts
}

func (s *Stats) snapshot() map[string]any {
	return map[string]any{
		"accepted":    s.Accepted.Load(),
		"rejected":    s.Rejected.Load(),
		"batches":     s.Batches.Load(),
		"sent":        s.Sent.Load(),
		"send_errors": s.SendErrors.Load(),
		"filtered":    s.Filtered.Load(),
		"bytes_out":   s.BytesOut.Load(),
		"retries":     s.Retries.Load(),
		"abandoned":   s.Abandoned.Load(),
	}
}
