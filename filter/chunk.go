// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"github.com/absmach/gamecast/message"
)

// Chunk-filter defaults.
const (
	DefaultChunkSize   int32 = 64
	DefaultChunkRadius int32 = 2
)

// ChunkScope denies chunk-scoped messages whose chunk is outside the
// candidate client's chunk neighborhood. Distance is Chebyshev: a radius of
// 1 around chunk (2,2) spans (1,1) through (3,3) inclusive.
type ChunkScope struct {
	chunkSize int32
	radius    int32
	kinds     map[message.Kind]struct{}
}

// NewChunkScope creates the chunk filter. Non-positive arguments fall back
// to the defaults.
func NewChunkScope(chunkSize, radius int32) *ChunkScope {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if radius <= 0 {
		radius = DefaultChunkRadius
	}
	return &ChunkScope{
		chunkSize: chunkSize,
		radius:    radius,
		kinds: map[message.Kind]struct{}{
			message.KindBlockUpdate:   {},
			message.KindChunkData:     {},
			message.KindEntitySpawn:   {},
			message.KindEntityDespawn: {},
			message.KindItemSpawn:     {},
		},
	}
}

func (f *ChunkScope) Name() string { return "chunk" }

func (f *ChunkScope) Decide(ctx Context) Decision {
	if _, ok := f.kinds[ctx.Kind]; !ok {
		return Allow
	}
	ch, ok := ctx.Payload.(message.Chunked)
	if !ok {
		return Allow
	}
	cx, cy, ok := ch.Chunk(f.chunkSize)
	if !ok {
		return Allow
	}
	if chebyshev(ctx.ClientChunkX, ctx.ClientChunkY, cx, cy) > f.radius {
		return Deny
	}
	return Allow
}

func chebyshev(x1, y1, x2, y2 int32) int32 {
	dx := abs32(x1 - x2)
	dy := abs32(y1 - y2)
	if dx > dy {
		return dx
	}
	return dy
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
