// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the priority-ordered, throttled, batching buffer
// between the broadcast entry points and the distribution loop.
package queue

import (
	"encoding/json"
	"time"

	"github.com/absmach/gamecast/message"
)

// Pattern selects how the distribution loop resolves a message's targets.
// Resolution happens at drain time so the registry state is current.
type Pattern uint8

const (
	PatternAll Pattern = iota
	PatternUnicast
	PatternMulticast
	PatternChunk
	PatternProximity
)

func (p Pattern) String() string {
	switch p {
	case PatternAll:
		return "all"
	case PatternUnicast:
		return "unicast"
	case PatternMulticast:
		return "multicast"
	case PatternChunk:
		return "chunk"
	case PatternProximity:
		return "proximity"
	default:
		return "unknown"
	}
}

// Message is one queued broadcast. It is immutable once enqueued except for
// Attempts and EnqueuedAt, which the reliable retry path refreshes.
type Message struct {
	ID       string
	Priority message.Priority
	Kind     message.Kind
	Payload  message.Payload

	Pattern       Pattern
	Targets       []string // explicit targets for unicast/multicast
	SenderID      string
	ExcludeSender bool

	// Proximity parameters.
	OriginX, OriginY float64
	Radius           float64

	// Chunk-cast parameters.
	ChunkX, ChunkY int32

	Reliable    bool
	Attempts    int
	MaxAttempts int

	EnqueuedAt time.Time

	size int // estimated serialized size, computed on admission
}

// EstimatedSize returns the serialized payload size used for batch byte
// accounting.
func (m *Message) EstimatedSize() int {
	if m.size == 0 {
		if data, err := json.Marshal(m.Payload); err == nil {
			m.size = len(data)
		} else {
			m.size = 1
		}
	}
	return m.size
}
