// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package message defines the message kinds, priorities and typed payloads
// carried by the distribution pipeline.
package message

// Kind identifies a network message kind.
type Kind string

// Message kind constants.
const (
	KindPlayerUpdate   Kind = "player.update"
	KindPlayerPosition Kind = "player.position"
	KindPlayerJoin     Kind = "player.join"
	KindPlayerLeave    Kind = "player.leave"

	KindEntityUpdate  Kind = "entity.update"
	KindEntitySpawn   Kind = "entity.spawn"
	KindEntityDespawn Kind = "entity.despawn"

	KindBlockUpdate Kind = "block.update"
	KindChunkData   Kind = "chunk.data"

	KindItemSpawn  Kind = "item.spawn"
	KindItemPickup Kind = "item.pickup"

	KindInventoryUpdate Kind = "inventory.update"
	KindPrivateMessage  Kind = "chat.private"
	KindChat            Kind = "chat.message"

	KindServerStatus Kind = "server.status"
	KindError        Kind = "server.error"
)

// Priority orders messages in the queue. Lower value drains first.
type Priority uint8

const (
	Critical Priority = iota
	High
	Normal
	Low
	Bulk
)

// Priorities lists all lanes in drain order.
var Priorities = [...]Priority{Critical, High, Normal, Low, Bulk}

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Bulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a defined priority lane.
func (p Priority) Valid() bool {
	return p <= Bulk
}

// DefaultPriority returns the lane a kind is published on when the caller
// does not choose one.
func DefaultPriority(k Kind) Priority {
	switch k {
	case KindPlayerJoin, KindPlayerLeave, KindError:
		return Critical
	case KindInventoryUpdate, KindItemPickup, KindPrivateMessage:
		return High
	case KindPlayerUpdate, KindPlayerPosition, KindBlockUpdate, KindChat, KindItemSpawn:
		return Normal
	case KindEntityUpdate, KindEntitySpawn, KindEntityDespawn:
		return Low
	case KindChunkData:
		return Bulk
	default:
		return Normal
	}
}
