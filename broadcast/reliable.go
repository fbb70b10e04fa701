// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"sync"
	"time"

	"github.com/absmach/gamecast/queue"
)

// pending is one reliable message awaiting acknowledgement from every
// outstanding target.
type pending struct {
	msg         *queue.Message
	outstanding map[string]struct{}
	attempts    int
	lastSentAt  time.Time
}

// reliableTable tracks in-flight reliable messages by message ID. The
// dispatch path records deliveries, the transport reports acks, and the
// retry sweep decides what to resend.
type reliableTable struct {
	mu      sync.Mutex
	entries map[string]*pending
}

func newReliableTable() *reliableTable {
	return &reliableTable{entries: make(map[string]*pending)}
}

// record notes that a reliable message was just sent to targets. A first
// send creates the entry; a retry only refreshes the send time, since acks
// received meanwhile must not be resurrected.
func (t *reliableTable) record(msg *queue.Message, targets []string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[msg.ID]; ok {
		e.lastSentAt = now
		return
	}
	if len(targets) == 0 {
		return
	}

	outstanding := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		outstanding[id] = struct{}{}
	}
	t.entries[msg.ID] = &pending{
		msg:         msg,
		outstanding: outstanding,
		attempts:    msg.Attempts,
		lastSentAt:  now,
	}
}

// ack removes one client from a message's outstanding set. It reports
// whether the message is now fully acknowledged and retired.
func (t *reliableTable) ack(messageID, clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[messageID]
	if !ok {
		return false
	}
	delete(e.outstanding, clientID)
	if len(e.outstanding) == 0 {
		delete(t.entries, messageID)
		return true
	}
	return false
}

// drop removes a client from every outstanding set, for disconnects.
func (t *reliableTable) drop(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		delete(e.outstanding, clientID)
		if len(e.outstanding) == 0 {
			delete(t.entries, id)
		}
	}
}

// retryCandidate is one overdue entry surfaced by expire.
type retryCandidate struct {
	msg       *queue.Message
	targets   []string
	attempts  int
	abandoned bool
}

// expire returns the entries whose last send is older than timeout. Each
// returned candidate has its attempt counter bumped; entries whose budget
// is exhausted are removed and flagged abandoned.
func (t *reliableTable) expire(now time.Time, timeout time.Duration, maxAttempts int) []retryCandidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []retryCandidate
	for id, e := range t.entries {
		if now.Sub(e.lastSentAt) <= timeout {
			continue
		}
		e.attempts++
		c := retryCandidate{
			msg:      e.msg,
			targets:  keys(e.outstanding),
			attempts: e.attempts,
		}
		if e.attempts >= maxAttempts {
			c.abandoned = true
			delete(t.entries, id)
		} else {
			e.lastSentAt = now
		}
		out = append(out, c)
	}
	return out
}

// size returns the number of in-flight reliable messages.
func (t *reliableTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// clear abandons every in-flight message, for shutdown.
func (t *reliableTable) clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[string]*pending)
	return n
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
