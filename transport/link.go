// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the WebSocket-backed client link used to push
// distributed messages to connected game clients.
package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/absmach/gamecast/message"
)

// ErrLinkClosed is returned by Send after the link was closed.
var ErrLinkClosed = errors.New("link closed")

// DefaultWriteTimeout bounds a single outbound write.
const DefaultWriteTimeout = 5 * time.Second

// Envelope is the outbound wire format. Data carries the frame bytes
// produced by the compressor (base64 under JSON encoding).
type Envelope struct {
	Kind message.Kind `json:"kind"`
	Data []byte       `json:"data"`
}

// WSLink adapts one WebSocket connection to the registry's ClientLink.
// gorilla/websocket allows a single concurrent writer, so writes are
// serialized under a mutex.
type WSLink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

// NewWSLink wraps a connection. A non-positive writeTimeout falls back to
// DefaultWriteTimeout.
func NewWSLink(conn *websocket.Conn, writeTimeout time.Duration) *WSLink {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSLink{conn: conn, writeTimeout: writeTimeout}
}

// Send writes one envelope. A write error closes the link; the distribution
// loop treats the error as a soft failure and the server tears the
// connection down on its read path.
func (l *WSLink) Send(kind message.Kind, payload []byte) error {
	data, err := json.Marshal(Envelope{Kind: kind, Data: payload})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return err
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		l.closed = true
		return err
	}
	return nil
}

// Close shuts the underlying connection. Safe to call more than once.
func (l *WSLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}
