// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

// Payload is the tagged union of message bodies. Each message kind has one
// concrete variant; filters discover variant capabilities through the
// Positioned, Chunked, Owned and Entity interfaces instead of probing
// untyped maps for well-known keys.
type Payload interface {
	Kind() Kind
}

// Positioned payloads carry a world position.
type Positioned interface {
	Position() (x, y float64, ok bool)
}

// Chunked payloads are scoped to a chunk. Implementations may derive the
// chunk from a position when no explicit chunk coordinate is present.
type Chunked interface {
	Chunk(chunkSize int32) (cx, cy int32, ok bool)
}

// Owned payloads are restricted to a single recipient. An empty owner means
// the payload is not owner-restricted.
type Owned interface {
	OwnerID() string
}

// Entity payloads describe one entity and are eligible for delta
// compression keyed on that entity.
type Entity interface {
	EntityID() string
}

func chunkOf(x, y float64, size int32) (int32, int32) {
	return floorDiv(x, size), floorDiv(y, size)
}

func floorDiv(v float64, size int32) int32 {
	q := v / float64(size)
	i := int32(q)
	if q < 0 && float64(i) != q {
		i--
	}
	return i
}

// PlayerUpdate carries a player's continuous state.
type PlayerUpdate struct {
	PlayerID string         `json:"player_id"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Health   float64        `json:"health"`
	State    map[string]any `json:"state,omitempty"`
}

func (PlayerUpdate) Kind() Kind { return KindPlayerUpdate }

func (p PlayerUpdate) Position() (float64, float64, bool) { return p.X, p.Y, true }

func (p PlayerUpdate) EntityID() string { return p.PlayerID }

// PlayerPosition is the minimal movement update.
type PlayerPosition struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func (PlayerPosition) Kind() Kind { return KindPlayerPosition }

func (p PlayerPosition) Position() (float64, float64, bool) { return p.X, p.Y, true }

func (p PlayerPosition) EntityID() string { return p.PlayerID }

// PlayerJoin announces a new player.
type PlayerJoin struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func (PlayerJoin) Kind() Kind { return KindPlayerJoin }

// PlayerLeave announces a departed player.
type PlayerLeave struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason,omitempty"`
}

func (PlayerLeave) Kind() Kind { return KindPlayerLeave }

// EntityUpdate carries continuous non-player entity state.
type EntityUpdate struct {
	ID    string         `json:"id"`
	X     float64        `json:"x"`
	Y     float64        `json:"y"`
	State map[string]any `json:"state,omitempty"`
}

func (EntityUpdate) Kind() Kind { return KindEntityUpdate }

func (e EntityUpdate) Position() (float64, float64, bool) { return e.X, e.Y, true }

func (e EntityUpdate) EntityID() string { return e.ID }

// EntitySpawn announces a new entity in a chunk.
type EntitySpawn struct {
	ID         string  `json:"id"`
	EntityKind string  `json:"entity_kind"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

func (EntitySpawn) Kind() Kind { return KindEntitySpawn }

func (e EntitySpawn) Position() (float64, float64, bool) { return e.X, e.Y, true }

func (e EntitySpawn) Chunk(size int32) (int32, int32, bool) {
	cx, cy := chunkOf(e.X, e.Y, size)
	return cx, cy, true
}

func (e EntitySpawn) EntityID() string { return e.ID }

// EntityDespawn removes an entity.
type EntityDespawn struct {
	ID string `json:"id"`
}

func (EntityDespawn) Kind() Kind { return KindEntityDespawn }

func (e EntityDespawn) EntityID() string { return e.ID }

// BlockUpdate is a single block edit.
type BlockUpdate struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	BlockType string  `json:"block_type"`
	Removed   bool    `json:"removed,omitempty"`
}

func (BlockUpdate) Kind() Kind { return KindBlockUpdate }

func (b BlockUpdate) Position() (float64, float64, bool) { return b.X, b.Y, true }

func (b BlockUpdate) Chunk(size int32) (int32, int32, bool) {
	cx, cy := chunkOf(b.X, b.Y, size)
	return cx, cy, true
}

// ChunkData is a bulk chunk transfer addressed by explicit chunk coordinates.
type ChunkData struct {
	ChunkX int32  `json:"chunk_x"`
	ChunkY int32  `json:"chunk_y"`
	Blocks []byte `json:"blocks"`
}

func (ChunkData) Kind() Kind { return KindChunkData }

func (c ChunkData) Chunk(int32) (int32, int32, bool) { return c.ChunkX, c.ChunkY, true }

// ItemSpawn drops a floating item into the world.
type ItemSpawn struct {
	ItemID string  `json:"item_id"`
	Item   string  `json:"item"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

func (ItemSpawn) Kind() Kind { return KindItemSpawn }

func (i ItemSpawn) Position() (float64, float64, bool) { return i.X, i.Y, true }

func (i ItemSpawn) Chunk(size int32) (int32, int32, bool) {
	cx, cy := chunkOf(i.X, i.Y, size)
	return cx, cy, true
}

func (i ItemSpawn) EntityID() string { return i.ItemID }

// ItemPickup removes a floating item, addressed to its collector.
type ItemPickup struct {
	ItemID   string `json:"item_id"`
	PlayerID string `json:"player_id"`
}

func (ItemPickup) Kind() Kind { return KindItemPickup }

// InventoryUpdate is owner-restricted player inventory state.
type InventoryUpdate struct {
	PlayerID string         `json:"player_id"`
	Slots    map[string]any `json:"slots"`
}

func (InventoryUpdate) Kind() Kind { return KindInventoryUpdate }

func (i InventoryUpdate) OwnerID() string { return i.PlayerID }

func (i InventoryUpdate) EntityID() string { return i.PlayerID }

// PrivateMessage is a direct chat line for one recipient.
type PrivateMessage struct {
	TargetID string `json:"target_id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

func (PrivateMessage) Kind() Kind { return KindPrivateMessage }

func (p PrivateMessage) OwnerID() string { return p.TargetID }

// Chat is a public chat line. Non-global chat is only relevant near the
// sender's position.
type Chat struct {
	SenderID string  `json:"sender_id"`
	Text     string  `json:"text"`
	Global   bool    `json:"global"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
}

func (Chat) Kind() Kind { return KindChat }

func (c Chat) Position() (float64, float64, bool) {
	if c.Global {
		return 0, 0, false
	}
	return c.X, c.Y, true
}

// ServerStatus is a broadcast server notice.
type ServerStatus struct {
	Text    string `json:"text"`
	Players int    `json:"players"`
}

func (ServerStatus) Kind() Kind { return KindServerStatus }

// ErrorNotice reports a server-side error to a client.
type ErrorNotice struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

func (ErrorNotice) Kind() Kind { return KindError }
