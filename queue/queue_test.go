// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"testing"
	"time"

	"github.com/absmach/gamecast/message"
)

func testMessage(p message.Priority) *Message {
	return &Message{
		Priority: p,
		Kind:     message.KindChat,
		Payload:  message.Chat{SenderID: "p1", Text: "hello", Global: true},
	}
}

// drainAll repeatedly calls DequeueBatch until the queue is empty,
// collecting messages in release order.
func drainAll(t *testing.T, q *Queue) []*Message {
	t.Helper()
	var out []*Message
	for i := 0; i < 1000; i++ {
		b := q.DequeueBatch()
		if b != nil {
			out = append(out, b.Messages()...)
		}
		if q.Size(nil) == 0 && b == nil {
			break
		}
	}
	return out
}

func TestPriorityDrainOrder(t *testing.T) {
	q := New(Options{BatchSize: 100})

	for _, p := range []message.Priority{message.Bulk, message.Normal, message.Critical, message.Low, message.High} {
		if !q.Enqueue(testMessage(p)) {
			t.Fatalf("enqueue %v refused", p)
		}
	}

	got := drainAll(t, q)
	if len(got) != 5 {
		t.Fatalf("drained %d messages, want 5", len(got))
	}
	want := []message.Priority{message.Critical, message.High, message.Normal, message.Low, message.Bulk}
	for i, m := range got {
		if m.Priority != want[i] {
			t.Errorf("position %d drained %v, want %v", i, m.Priority, want[i])
		}
	}
}

func TestFIFOWithinLane(t *testing.T) {
	q := New(Options{BatchSize: 100})

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		m := testMessage(message.Normal)
		m.Payload = message.Chat{SenderID: "p1", Text: text, Global: true}
		if !q.Enqueue(m) {
			t.Fatalf("enqueue %q refused", text)
		}
	}

	got := drainAll(t, q)
	if len(got) != 3 {
		t.Fatalf("drained %d messages, want 3", len(got))
	}
	for i, m := range got {
		if m.Payload.(message.Chat).Text != texts[i] {
			t.Errorf("position %d = %q, want %q", i, m.Payload.(message.Chat).Text, texts[i])
		}
	}
}

func TestAdmissionCap(t *testing.T) {
	q := New(Options{MaxQueueSize: 2})

	if !q.Enqueue(testMessage(message.Critical)) || !q.Enqueue(testMessage(message.Critical)) {
		t.Fatal("first two messages should be admitted")
	}
	if q.Enqueue(testMessage(message.Critical)) {
		t.Error("message over the cap should be refused")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}
	if q.Throttled() != 0 {
		t.Errorf("Throttled = %d, want 0", q.Throttled())
	}
}

func TestThrottleWindow(t *testing.T) {
	q := New(Options{})
	q.SetThrottleLimit(message.Bulk, 2)

	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	if !q.Enqueue(testMessage(message.Bulk)) || !q.Enqueue(testMessage(message.Bulk)) {
		t.Fatal("messages within the limit should be admitted")
	}
	if q.Enqueue(testMessage(message.Bulk)) {
		t.Error("message over the lane limit should be throttled")
	}
	if q.Throttled() != 1 {
		t.Errorf("Throttled = %d, want 1", q.Throttled())
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", q.Dropped())
	}

	// The window slides: after a second the lane admits again.
	now = now.Add(time.Second + time.Millisecond)
	if !q.Enqueue(testMessage(message.Bulk)) {
		t.Error("message after the window slid should be admitted")
	}
}

func TestCriticalLaneNeverThrottled(t *testing.T) {
	q := New(Options{})
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	for i := 0; i < 500; i++ {
		if !q.Enqueue(testMessage(message.Critical)) {
			t.Fatalf("critical message %d throttled", i)
		}
	}
}

func TestBatchCriticalReleasesImmediately(t *testing.T) {
	q := New(Options{BatchSize: 100, BatchMaxAge: time.Hour})

	q.Enqueue(testMessage(message.Normal))
	q.Enqueue(testMessage(message.Critical))

	b := q.DequeueBatch()
	if b == nil {
		t.Fatal("batch holding a critical message should release immediately")
	}
	if b.Messages()[0].Priority != message.Critical {
		t.Errorf("first message = %v, want critical", b.Messages()[0].Priority)
	}
}

func TestBatchStaleRelease(t *testing.T) {
	q := New(Options{BatchSize: 100, BatchMaxAge: 50 * time.Millisecond})
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	q.Enqueue(testMessage(message.Normal))

	// One message, not full, not stale: the batch is held open even after
	// the lanes drain.
	if b := q.DequeueBatch(); b == nil {
		t.Fatal("lone non-critical message should still release once lanes are empty")
	}

	q.Enqueue(testMessage(message.Normal))
	q.Enqueue(testMessage(message.Normal))
	b := q.DequeueBatch()
	if b == nil || b.Len() != 2 {
		t.Fatal("expected both messages in one batch")
	}

	now = now.Add(100 * time.Millisecond)
	if b := q.DequeueBatch(); b != nil {
		t.Error("empty queue should yield no batch")
	}
}

func TestBatchFullRelease(t *testing.T) {
	q := New(Options{BatchSize: 2, BatchMaxAge: time.Hour})

	for i := 0; i < 3; i++ {
		q.Enqueue(testMessage(message.Normal))
	}

	b := q.DequeueBatch()
	if b == nil || b.Len() != 2 {
		t.Fatalf("first batch should be full with 2 messages, got %v", b)
	}
	b = q.DequeueBatch()
	if b == nil || b.Len() != 1 {
		t.Fatalf("second batch should carry the remaining message, got %v", b)
	}
}

func TestDequeueSingle(t *testing.T) {
	q := New(Options{})
	q.Enqueue(testMessage(message.Normal))
	q.Enqueue(testMessage(message.High))

	m := q.DequeueSingle(nil)
	if m == nil || m.Priority != message.High {
		t.Fatal("DequeueSingle(nil) should drain the highest lane first")
	}

	p := message.Normal
	m = q.DequeueSingle(&p)
	if m == nil || m.Priority != message.Normal {
		t.Fatal("DequeueSingle(Normal) should drain the normal lane")
	}
	if q.DequeueSingle(nil) != nil {
		t.Error("empty queue should yield nil")
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New(Options{})
	q.Enqueue(testMessage(message.Normal))

	if q.Peek(nil) == nil {
		t.Fatal("Peek should see the queued message")
	}
	if q.Size(nil) != 1 {
		t.Error("Peek must not remove the message")
	}
}

func TestClear(t *testing.T) {
	q := New(Options{})
	q.Enqueue(testMessage(message.Normal))
	q.Enqueue(testMessage(message.Bulk))

	p := message.Bulk
	q.Clear(&p)
	if q.Size(nil) != 1 {
		t.Errorf("Size after lane clear = %d, want 1", q.Size(nil))
	}

	q.Clear(nil)
	if q.Size(nil) != 0 {
		t.Errorf("Size after full clear = %d, want 0", q.Size(nil))
	}
}

func TestStatistics(t *testing.T) {
	q := New(Options{MaxQueueSize: 1})
	q.Enqueue(testMessage(message.Normal))
	q.Enqueue(testMessage(message.Normal))

	stats := q.Statistics()
	if stats["queued"].(uint64) != 1 {
		t.Errorf("queued = %v, want 1", stats["queued"])
	}
	if stats["dropped"].(uint64) != 1 {
		t.Errorf("dropped = %v, want 1", stats["dropped"])
	}
	if stats["depth"].(int) != 1 {
		t.Errorf("depth = %v, want 1", stats["depth"])
	}
}
