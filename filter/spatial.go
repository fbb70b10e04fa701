// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"math"

	"github.com/absmach/gamecast/message"
)

// DefaultMaxDistance is the spatial cutoff in world units.
const DefaultMaxDistance = 500.0

// Spatial denies position-bearing messages originating farther than
// maxDistance from the candidate client. Messages without a position, and
// kinds that are not position-scoped, pass through.
type Spatial struct {
	maxDistance float64
	kinds       map[message.Kind]struct{}
}

// NewSpatial creates the spatial filter. A non-positive maxDistance falls
// back to DefaultMaxDistance.
func NewSpatial(maxDistance float64) *Spatial {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Spatial{
		maxDistance: maxDistance,
		kinds: map[message.Kind]struct{}{
			message.KindEntityUpdate: {},
			message.KindPlayerUpdate: {},
			message.KindItemSpawn:    {},
			message.KindEntitySpawn:  {},
			message.KindBlockUpdate:  {},
		},
	}
}

func (f *Spatial) Name() string { return "spatial" }

func (f *Spatial) Decide(ctx Context) Decision {
	if _, ok := f.kinds[ctx.Kind]; !ok {
		return Allow
	}
	pos, ok := ctx.Payload.(message.Positioned)
	if !ok {
		return Allow
	}
	x, y, ok := pos.Position()
	if !ok {
		return Allow
	}
	if dist(ctx.ClientX, ctx.ClientY, x, y) > f.maxDistance {
		return Deny
	}
	return Allow
}

func dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
