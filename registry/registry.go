// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks connected clients: their transport link, world
// position, chunk membership and connection quality. It is read by every
// filter and target-resolution call and mutated only on connect, position
// update and disconnect.
package registry

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/absmach/gamecast/message"
)

// ErrUnknownClient is returned for operations on unregistered client IDs.
var ErrUnknownClient = errors.New("unknown client")

// DefaultChunkSize is the side length of a chunk in world units.
const DefaultChunkSize int32 = 64

// qualityDecay is the EWMA weight of a single send outcome.
const qualityDecay = 0.1

// ClientLink is the outbound transport capability required of a connected
// client. Send must not panic; a failed or slow write is reported as an
// error and treated as a soft failure by the distribution loop.
type ClientLink interface {
	Send(kind message.Kind, payload []byte) error
}

// ClientInfo is a snapshot of one registered client.
type ClientInfo struct {
	ClientID          string
	X, Y              float64
	ChunkX, ChunkY    int32
	InterestAreas     map[[2]int32]struct{}
	ConnectionQuality float64
	LastUpdate        time.Time
	Active            bool
}

type client struct {
	info ClientInfo
	link ClientLink
}

// Registry is the shared client directory. All methods are safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	chunkSize int32
	clients   map[string]*client
	byChunk   map[[2]int32]map[string]struct{}
}

// New creates a registry. A non-positive chunkSize falls back to
// DefaultChunkSize.
func New(chunkSize int32) *Registry {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Registry{
		chunkSize: chunkSize,
		clients:   make(map[string]*client),
		byChunk:   make(map[[2]int32]map[string]struct{}),
	}
}

// ChunkSize returns the configured chunk side length.
func (r *Registry) ChunkSize() int32 {
	return r.chunkSize
}

// Register adds a client at an initial position. Re-registering an existing
// ID replaces its link and position.
func (r *Registry) Register(clientID string, link ClientLink, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.clients[clientID]; ok {
		r.removeFromChunkLocked(clientID, old.info.ChunkX, old.info.ChunkY)
	}

	cx, cy := r.chunkAt(x, y)
	c := &client{
		info: ClientInfo{
			ClientID:          clientID,
			X:                 x,
			Y:                 y,
			ChunkX:            cx,
			ChunkY:            cy,
			InterestAreas:     map[[2]int32]struct{}{{cx, cy}: {}},
			ConnectionQuality: 1.0,
			LastUpdate:        time.Now(),
			Active:            true,
		},
		link: link,
	}
	r.clients[clientID] = c
	r.addToChunkLocked(clientID, cx, cy)
}

// UpdatePosition moves a client. When the position crosses a chunk boundary
// the client is moved between chunk subscriber sets under the same lock, so
// it is never observed in two chunks or in none.
func (r *Registry) UpdatePosition(clientID string, x, y float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}

	cx, cy := r.chunkAt(x, y)
	if cx != c.info.ChunkX || cy != c.info.ChunkY {
		r.removeFromChunkLocked(clientID, c.info.ChunkX, c.info.ChunkY)
		r.addToChunkLocked(clientID, cx, cy)
		c.info.InterestAreas[[2]int32{cx, cy}] = struct{}{}
		// Interest areas track the current neighborhood only; chunks left
		// behind are pruned so long-lived clients stay bounded.
		for area := range c.info.InterestAreas {
			if chebyshev(area[0], area[1], cx, cy) > 1 {
				delete(c.info.InterestAreas, area)
			}
		}
	}

	c.info.X, c.info.Y = x, y
	c.info.ChunkX, c.info.ChunkY = cx, cy
	c.info.LastUpdate = time.Now()
	return nil
}

// Unregister removes a client and purges every chunk subscription it holds.
// Unknown IDs are a no-op.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	for area := range c.info.InterestAreas {
		r.removeFromChunkLocked(clientID, area[0], area[1])
	}
	delete(r.clients, clientID)
}

// Get returns a snapshot of one client.
func (r *Registry) Get(clientID string) (ClientInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return ClientInfo{}, false
	}
	return snapshot(c), true
}

// Link returns the transport link for a client.
func (r *Registry) Link(clientID string) (ClientLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	return c.link, true
}

// All returns the IDs of every registered client.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ClientsInChunk returns the clients currently inside one chunk.
func (r *Registry) ClientsInChunk(cx, cy int32) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byChunk[[2]int32{cx, cy}]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ClientsInRadius returns the clients within radius of a center point.
// The boundary is inclusive: a client at exactly radius is returned.
func (r *Registry) ClientsInRadius(x, y, radius float64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxSq := radius * radius
	var ids []string
	for id, c := range r.clients {
		if !c.info.Active {
			continue
		}
		dx, dy := c.info.X-x, c.info.Y-y
		if dx*dx+dy*dy <= maxSq {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReportSend folds one send outcome into the client's connection quality
// score. The score is an EWMA in [0,1]; ghost IDs are ignored.
func (r *Registry) ReportSend(clientID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, found := r.clients[clientID]
	if !found {
		return
	}
	sample := 0.0
	if ok {
		sample = 1.0
	}
	q := c.info.ConnectionQuality*(1-qualityDecay) + sample*qualityDecay
	c.info.ConnectionQuality = math.Min(1.0, math.Max(0.0, q))
}

func (r *Registry) chunkAt(x, y float64) (int32, int32) {
	return floorDiv(x, r.chunkSize), floorDiv(y, r.chunkSize)
}

func (r *Registry) addToChunkLocked(clientID string, cx, cy int32) {
	key := [2]int32{cx, cy}
	set, ok := r.byChunk[key]
	if !ok {
		set = make(map[string]struct{})
		r.byChunk[key] = set
	}
	set[clientID] = struct{}{}
}

func (r *Registry) removeFromChunkLocked(clientID string, cx, cy int32) {
	key := [2]int32{cx, cy}
	if set, ok := r.byChunk[key]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.byChunk, key)
		}
	}
}

func snapshot(c *client) ClientInfo {
	info := c.info
	info.InterestAreas = make(map[[2]int32]struct{}, len(c.info.InterestAreas))
	for k, v := range c.info.InterestAreas {
		info.InterestAreas[k] = v
	}
	return info
}

func chebyshev(x1, y1, x2, y2 int32) int32 {
	dx := x1 - x2
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y2
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

func floorDiv(v float64, size int32) int32 {
	q := v / float64(size)
	i := int32(q)
	if q < 0 && float64(i) != q {
		i--
	}
	return i
}
