// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package filter implements interest management: a fixed chain of
// predicates that decides, per candidate client, whether a message is
// delivered.
package filter

import (
	"sync/atomic"
	"time"

	"github.com/absmach/gamecast/message"
)

// Decision is the outcome of evaluating one filter.
type Decision int

const (
	Allow Decision = iota
	Deny
	Modify
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

// Context carries everything a filter may inspect for one
// (message, candidate client) evaluation. It is built per evaluation and
// never retained.
type Context struct {
	ClientID     string
	ClientX      float64
	ClientY      float64
	ClientChunkX int32
	ClientChunkY int32
	Kind         message.Kind
	Payload      message.Payload
	SenderID     string
	Timestamp    time.Time
}

// Filter is a single interest predicate.
type Filter interface {
	Name() string
	Decide(ctx Context) Decision
}

// Stats counts decisions made by one filter.
type Stats struct {
	processed atomic.Uint64
	allowed   atomic.Uint64
	denied    atomic.Uint64
	modified  atomic.Uint64
}

func (s *Stats) record(d Decision) {
	s.processed.Add(1)
	switch d {
	case Allow:
		s.allowed.Add(1)
	case Deny:
		s.denied.Add(1)
	case Modify:
		s.modified.Add(1)
	}
}

// Snapshot returns the counters as a map.
func (s *Stats) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"processed": s.processed.Load(),
		"allowed":   s.allowed.Load(),
		"denied":    s.denied.Load(),
		"modified":  s.modified.Load(),
	}
}
