// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/absmach/gamecast/message"
)

// bigState builds a payload comfortably over MinCompressSize.
func bigState(fields map[string]any) map[string]any {
	state := map[string]any{
		"padding": strings.Repeat("x", 200),
	}
	for k, v := range fields {
		state[k] = v
	}
	return state
}

func TestZlibRoundTrip(t *testing.T) {
	c := New(0)

	payload := map[string]any{"blocks": strings.Repeat("stone,", 100)}
	frame, meta, err := c.Compress(message.KindChunkData, payload, "")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if meta.Algorithm != Zlib {
		t.Fatalf("algorithm = %v, want zlib", meta.Algorithm)
	}
	if meta.FrameSize >= meta.OriginalSize {
		t.Errorf("frame (%d bytes) should be smaller than original (%d bytes)", meta.FrameSize, meta.OriginalSize)
	}

	state, _, err := c.Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if state["blocks"] != payload["blocks"] {
		t.Error("round trip did not preserve the payload")
	}
}

func TestSmallPayloadSkipsCompression(t *testing.T) {
	c := New(0)

	frame, meta, err := c.Compress(message.KindChat, map[string]any{"text": "hi"}, "")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if meta.Algorithm != None {
		t.Errorf("small payload algorithm = %v, want none", meta.Algorithm)
	}

	state, _, err := c.Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if state["text"] != "hi" {
		t.Error("round trip did not preserve the payload")
	}
}

func TestDeltaSequence(t *testing.T) {
	sender := New(time.Hour)
	receiver := New(time.Hour)

	// First send carries the full state.
	first := bigState(map[string]any{"x": 1.0, "y": 2.0, "hp": 20.0})
	frame, meta, err := sender.Compress(message.KindPlayerUpdate, first, "p1")
	if err != nil {
		t.Fatalf("first Compress failed: %v", err)
	}
	if !meta.FullState {
		t.Fatal("first send for an entity must be full state")
	}
	got, _, err := receiver.Decompress(frame)
	if err != nil {
		t.Fatalf("first Decompress failed: %v", err)
	}
	if got["hp"] != 20.0 {
		t.Errorf("hp = %v, want 20", got["hp"])
	}

	// Second send with one changed field ships a delta.
	second := bigState(map[string]any{"x": 1.0, "y": 2.0, "hp": 15.0})
	frame, meta, err = sender.Compress(message.KindPlayerUpdate, second, "p1")
	if err != nil {
		t.Fatalf("second Compress failed: %v", err)
	}
	if meta.Algorithm != Delta || meta.FullState {
		t.Fatalf("second send = (%v, full=%v), want non-full delta", meta.Algorithm, meta.FullState)
	}
	if meta.FrameSize >= meta.OriginalSize {
		t.Errorf("delta frame (%d) should be smaller than original (%d)", meta.FrameSize, meta.OriginalSize)
	}

	got, _, err = receiver.Decompress(frame)
	if err != nil {
		t.Fatalf("second Decompress failed: %v", err)
	}
	if got["hp"] != 15.0 {
		t.Errorf("reconstructed hp = %v, want 15", got["hp"])
	}
	if got["x"] != 1.0 || got["y"] != 2.0 {
		t.Error("unchanged fields should survive delta reconstruction")
	}
}

func TestDeltaDeletionSentinel(t *testing.T) {
	sender := New(time.Hour)
	receiver := New(time.Hour)

	first := bigState(map[string]any{"buff": "speed", "hp": 20.0})
	frame, _, err := sender.Compress(message.KindPlayerUpdate, first, "p1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if _, _, err := receiver.Decompress(frame); err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}

	second := bigState(map[string]any{"hp": 20.0})
	frame, meta, err := sender.Compress(message.KindPlayerUpdate, second, "p1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if meta.Algorithm != Delta {
		t.Fatalf("algorithm = %v, want delta", meta.Algorithm)
	}

	got, _, err := receiver.Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if _, present := got["buff"]; present {
		t.Error("removed key should be deleted on the receiver")
	}
	if got["hp"] != 20.0 {
		t.Errorf("hp = %v, want 20", got["hp"])
	}
}

func TestDeltaFullStateInterval(t *testing.T) {
	sender := New(10 * time.Second)
	now := time.Unix(1000, 0)
	sender.now = func() time.Time { return now }

	state := bigState(map[string]any{"x": 1.0})
	if _, meta, err := sender.Compress(message.KindPlayerUpdate, state, "p1"); err != nil || !meta.FullState {
		t.Fatalf("first send = (full=%v, err=%v), want full state", meta.FullState, err)
	}

	now = now.Add(5 * time.Second)
	state = bigState(map[string]any{"x": 2.0})
	if _, meta, err := sender.Compress(message.KindPlayerUpdate, state, "p1"); err != nil || meta.FullState {
		t.Fatalf("send within interval = (full=%v, err=%v), want delta", meta.FullState, err)
	}

	// Past the interval the baseline is refreshed with a full state even
	// though a delta would be smaller.
	now = now.Add(11 * time.Second)
	state = bigState(map[string]any{"x": 3.0})
	if _, meta, err := sender.Compress(message.KindPlayerUpdate, state, "p1"); err != nil || !meta.FullState {
		t.Fatalf("send past interval = (full=%v, err=%v), want full state", meta.FullState, err)
	}
}

func TestDeltaWithoutBaselineFails(t *testing.T) {
	sender := New(time.Hour)
	receiver := New(time.Hour)

	first := bigState(map[string]any{"hp": 20.0})
	if _, _, err := sender.Compress(message.KindPlayerUpdate, first, "p1"); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	second := bigState(map[string]any{"hp": 15.0})
	frame, _, err := sender.Compress(message.KindPlayerUpdate, second, "p1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	// The receiver never saw the full state.
	if _, _, err := receiver.Decompress(frame); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("Decompress without baseline = %v, want ErrNoBaseline", err)
	}
}

func TestEffectivenessGuard(t *testing.T) {
	c := New(0)

	// Random-looking unique data compresses poorly; the guard must fall
	// back to the raw payload.
	var b bytes.Buffer
	for i := 0; i < 300; i++ {
		b.WriteByte(byte(i*7 + i*i*13))
	}
	frame, _, err := c.Compress(message.KindChunkData, map[string]any{"blocks": b.Bytes()}, "")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	state, _, err := c.Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if state["blocks"] == nil {
		t.Error("payload lost in fallback")
	}
}

func TestHybridPicksSmaller(t *testing.T) {
	sender := New(time.Hour)
	receiver := New(time.Hour)

	first := bigState(map[string]any{"x": 1.0, "y": 2.0})
	frame, _, err := sender.Compress(message.KindEntityUpdate, first, "e1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if _, _, err := receiver.Decompress(frame); err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}

	// A one-field change: the delta should beat zlib.
	second := bigState(map[string]any{"x": 1.0, "y": 3.0})
	frame, meta, err := sender.Compress(message.KindEntityUpdate, second, "e1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if meta.Algorithm != Delta {
		t.Fatalf("algorithm = %v, want delta for a tiny diff", meta.Algorithm)
	}

	got, _, err := receiver.Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if got["y"] != 3.0 {
		t.Errorf("y = %v, want 3", got["y"])
	}
}

func TestClearHistory(t *testing.T) {
	sender := New(time.Hour)

	state := bigState(map[string]any{"hp": 20.0})
	if _, _, err := sender.Compress(message.KindPlayerUpdate, state, "p1"); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	sender.ClearHistory("p1")

	// With no baseline the next send is full state again.
	next := bigState(map[string]any{"hp": 15.0})
	_, meta, err := sender.Compress(message.KindPlayerUpdate, next, "p1")
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if !meta.FullState {
		t.Error("send after ClearHistory should be full state")
	}
}

func TestDecompressShortFrame(t *testing.T) {
	c := New(0)
	if _, _, err := c.Decompress([]byte{1}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Decompress(short) = %v, want ErrShortFrame", err)
	}
}

func TestStatisticsRatio(t *testing.T) {
	c := New(0)
	payload := map[string]any{"blocks": strings.Repeat("stone,", 100)}
	if _, _, err := c.Compress(message.KindChunkData, payload, ""); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	stats := c.Statistics()
	if stats["raw_bytes"].(uint64) == 0 {
		t.Error("raw_bytes should be counted")
	}
	if stats["ratio"].(float64) >= 1.0 {
		t.Errorf("ratio = %v, want < 1 for compressible data", stats["ratio"])
	}
}
