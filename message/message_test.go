// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import "testing"

func TestPriorityOrdering(t *testing.T) {
	if !(Critical < High && High < Normal && Normal < Low && Low < Bulk) {
		t.Error("priority numeric order must be Critical < High < Normal < Low < Bulk")
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range Priorities {
		if !p.Valid() {
			t.Errorf("priority %v should be valid", p)
		}
	}
	if Priority(5).Valid() {
		t.Error("priority 5 should be invalid")
	}
}

func TestDefaultPriority(t *testing.T) {
	tests := []struct {
		kind Kind
		want Priority
	}{
		{KindPlayerJoin, Critical},
		{KindPlayerLeave, Critical},
		{KindError, Critical},
		{KindPlayerPosition, Normal},
		{KindChat, Normal},
		{KindChunkData, Bulk},
	}

	for _, tt := range tests {
		if got := DefaultPriority(tt.kind); got != tt.want {
			t.Errorf("DefaultPriority(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestChunkCoordinates(t *testing.T) {
	tests := []struct {
		x, y   float64
		cx, cy int32
	}{
		{0, 0, 0, 0},
		{63, 63, 0, 0},
		{64, 64, 1, 1},
		{-1, -1, -1, -1},
		{-64, -64, -1, -1},
		{-65, -65, -2, -2},
		{130, -10, 2, -1},
	}

	for _, tt := range tests {
		b := BlockUpdate{X: tt.x, Y: tt.y, BlockType: "stone"}
		cx, cy, ok := b.Chunk(64)
		if !ok {
			t.Fatalf("Chunk(64) at (%v,%v) should report ok", tt.x, tt.y)
		}
		if cx != tt.cx || cy != tt.cy {
			t.Errorf("Chunk at (%v,%v) = (%d,%d), want (%d,%d)", tt.x, tt.y, cx, cy, tt.cx, tt.cy)
		}
	}
}

func TestGlobalChatHasNoPosition(t *testing.T) {
	global := Chat{SenderID: "p1", Text: "hi", Global: true, X: 10, Y: 10}
	if _, _, ok := global.Position(); ok {
		t.Error("global chat must not expose a position")
	}

	local := Chat{SenderID: "p1", Text: "hi", X: 10, Y: 10}
	x, y, ok := local.Position()
	if !ok || x != 10 || y != 10 {
		t.Errorf("local chat position = (%v,%v,%v), want (10,10,true)", x, y, ok)
	}
}
