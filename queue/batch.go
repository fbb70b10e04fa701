// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"time"

	"github.com/absmach/gamecast/message"
)

// Batch defaults.
const (
	DefaultBatchSize   = 10
	DefaultBatchBytes  = 8192
	DefaultBatchMaxAge = 50 * time.Millisecond
)

// Batch is a bounded group of messages handed to the distribution loop as
// one unit. A batch reports itself ready once it is full, stale, or holds a
// Critical message.
type Batch struct {
	maxSize    int
	maxBytes   int
	maxAge     time.Duration
	createdAt  time.Time
	totalBytes int
	critical   bool
	messages   []*Message
}

func newBatch(maxSize, maxBytes int, maxAge time.Duration, now time.Time) *Batch {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	if maxBytes <= 0 {
		maxBytes = DefaultBatchBytes
	}
	if maxAge <= 0 {
		maxAge = DefaultBatchMaxAge
	}
	return &Batch{
		maxSize:   maxSize,
		maxBytes:  maxBytes,
		maxAge:    maxAge,
		createdAt: now,
		messages:  make([]*Message, 0, maxSize),
	}
}

// canAdd reports whether one more message fits the size and byte bounds.
// The first message always fits so an oversized payload cannot wedge the
// drain loop.
func (b *Batch) canAdd(m *Message) bool {
	if len(b.messages) >= b.maxSize {
		return false
	}
	if len(b.messages) == 0 {
		return true
	}
	return b.totalBytes+m.EstimatedSize() <= b.maxBytes
}

func (b *Batch) add(m *Message) {
	b.messages = append(b.messages, m)
	b.totalBytes += m.EstimatedSize()
	if m.Priority == message.Critical {
		b.critical = true
	}
}

// ready reports whether the batch should be released to the loop.
func (b *Batch) ready(now time.Time) bool {
	if len(b.messages) >= b.maxSize {
		return true
	}
	if now.Sub(b.createdAt) > b.maxAge {
		return true
	}
	return b.critical
}

// Messages returns the batch contents in fill order.
func (b *Batch) Messages() []*Message {
	return b.messages
}

// Len returns the number of messages in the batch.
func (b *Batch) Len() int {
	return len(b.messages)
}

// Bytes returns the estimated serialized size of the batch.
func (b *Batch) Bytes() int {
	return b.totalBytes
}
