// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"github.com/absmach/gamecast/message"
)

// Kind-specific visibility ranges in world units.
const (
	playerVisibleRange = 300.0
	entityVisibleRange = 400.0
	localChatRange     = 100.0
)

// Relevance applies kind-specific heuristics: a player's own updates are
// always relevant, other players and entities only within their visibility
// range, non-global chat only near the sender.
type Relevance struct{}

// NewRelevance creates the relevance filter.
func NewRelevance() *Relevance { return &Relevance{} }

func (f *Relevance) Name() string { return "relevance" }

func (f *Relevance) Decide(ctx Context) Decision {
	switch p := ctx.Payload.(type) {
	case message.PlayerUpdate:
		return f.within(ctx, p.PlayerID, p.X, p.Y, playerVisibleRange)
	case message.PlayerPosition:
		return f.within(ctx, p.PlayerID, p.X, p.Y, playerVisibleRange)
	case message.EntityUpdate:
		return f.within(ctx, "", p.X, p.Y, entityVisibleRange)
	case message.Chat:
		if p.Global {
			return Allow
		}
		x, y, ok := p.Position()
		if !ok {
			return Allow
		}
		if dist(ctx.ClientX, ctx.ClientY, x, y) > localChatRange {
			return Deny
		}
		return Allow
	default:
		return Allow
	}
}

func (f *Relevance) within(ctx Context, subject string, x, y, visible float64) Decision {
	if subject != "" && subject == ctx.ClientID {
		return Allow
	}
	if dist(ctx.ClientX, ctx.ClientY, x, y) > visible {
		return Deny
	}
	return Allow
}
