// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"testing"
	"time"

	"github.com/absmach/gamecast/message"
	"github.com/absmach/gamecast/queue"
)

func reliableMsg(id string) *queue.Message {
	return &queue.Message{
		ID:       id,
		Priority: message.Normal,
		Kind:     message.KindChat,
		Payload:  message.Chat{SenderID: "s", Text: "hi", Global: true},
		Reliable: true,
	}
}

func TestReliableAckRetires(t *testing.T) {
	tbl := newReliableTable()
	now := time.Unix(1000, 0)

	tbl.record(reliableMsg("m1"), []string{"a", "b"}, now)
	if tbl.size() != 1 {
		t.Fatalf("size = %d, want 1", tbl.size())
	}

	if tbl.ack("m1", "a") {
		t.Error("partial ack should not retire the message")
	}
	if !tbl.ack("m1", "b") {
		t.Error("final ack should retire the message")
	}
	if tbl.size() != 0 {
		t.Errorf("size after full ack = %d, want 0", tbl.size())
	}

	// Acking an unknown message is a no-op.
	if tbl.ack("ghost", "a") {
		t.Error("unknown message id should not report retired")
	}
}

func TestReliableRecordOnRetryKeepsAcks(t *testing.T) {
	tbl := newReliableTable()
	now := time.Unix(1000, 0)

	msg := reliableMsg("m1")
	tbl.record(msg, []string{"a", "b"}, now)
	tbl.ack("m1", "a")

	// A retry dispatch re-records the same id; the earlier ack must hold.
	tbl.record(msg, []string{"a", "b"}, now.Add(time.Second))
	if !tbl.ack("m1", "b") {
		t.Error("remaining target's ack should retire the message")
	}
}

func TestReliableDropClient(t *testing.T) {
	tbl := newReliableTable()
	now := time.Unix(1000, 0)

	tbl.record(reliableMsg("m1"), []string{"a"}, now)
	tbl.record(reliableMsg("m2"), []string{"a", "b"}, now)

	tbl.drop("a")
	if tbl.size() != 1 {
		t.Errorf("size after drop = %d, want 1 (m1 retired, m2 waits on b)", tbl.size())
	}
}

func TestReliableExpireAttemptBound(t *testing.T) {
	tbl := newReliableTable()
	now := time.Unix(1000, 0)
	timeout := 5 * time.Second
	maxAttempts := 3

	tbl.record(reliableMsg("m1"), []string{"a"}, now)

	// Within the timeout nothing expires.
	if got := tbl.expire(now.Add(timeout), timeout, maxAttempts); len(got) != 0 {
		t.Fatalf("expire at the boundary returned %d candidates, want 0", len(got))
	}

	var retries, abandoned int
	for i := 1; i <= maxAttempts+2; i++ {
		now = now.Add(timeout + time.Second)
		for _, c := range tbl.expire(now, timeout, maxAttempts) {
			if c.abandoned {
				abandoned++
			} else {
				retries++
			}
		}
	}

	if retries != maxAttempts-1 {
		t.Errorf("retries = %d, want %d", retries, maxAttempts-1)
	}
	if abandoned != 1 {
		t.Errorf("abandoned = %d, want exactly 1", abandoned)
	}
	if tbl.size() != 0 {
		t.Errorf("size after abandonment = %d, want 0", tbl.size())
	}
}

func TestReliableClear(t *testing.T) {
	tbl := newReliableTable()
	now := time.Unix(1000, 0)

	tbl.record(reliableMsg("m1"), []string{"a"}, now)
	tbl.record(reliableMsg("m2"), []string{"b"}, now)

	if n := tbl.clear(); n != 2 {
		t.Errorf("clear = %d, want 2", n)
	}
	if tbl.size() != 0 {
		t.Errorf("size after clear = %d, want 0", tbl.size())
	}
}
