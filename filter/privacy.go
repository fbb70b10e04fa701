// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"github.com/absmach/gamecast/message"
)

// Privacy denies owner-restricted payloads (inventory state, direct
// messages) to everyone but their declared owner. Payloads without an owner
// restriction pass through.
type Privacy struct {
	kinds map[message.Kind]struct{}
}

// NewPrivacy creates the privacy filter.
func NewPrivacy() *Privacy {
	return &Privacy{
		kinds: map[message.Kind]struct{}{
			message.KindInventoryUpdate: {},
			message.KindPrivateMessage:  {},
		},
	}
}

func (f *Privacy) Name() string { return "privacy" }

func (f *Privacy) Decide(ctx Context) Decision {
	if _, ok := f.kinds[ctx.Kind]; !ok {
		return Allow
	}
	owned, ok := ctx.Payload.(message.Owned)
	if !ok {
		return Allow
	}
	owner := owned.OwnerID()
	if owner == "" || owner == ctx.ClientID {
		return Allow
	}
	return Deny
}
