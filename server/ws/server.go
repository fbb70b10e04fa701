// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ws exposes the broadcast pipeline over WebSocket. Clients
// announce themselves with a hello frame, then stream position updates,
// chat and acknowledgements; the pipeline pushes world updates back over
// the same connection.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/absmach/gamecast/broadcast"
	"github.com/absmach/gamecast/message"
	"github.com/absmach/gamecast/transport"
)

type Config struct {
	Address         string
	Path            string
	ReadLimit       int64
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	config   Config
	manager  *broadcast.Manager
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// hello is the first frame a client must send after connecting.
type hello struct {
	ClientID string  `json:"client_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// inbound is every subsequent client frame.
type inbound struct {
	Type      string  `json:"type"` // position, chat, ack
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Text      string  `json:"text"`
	Global    bool    `json:"global"`
	MessageID string  `json:"message_id"`
}

func New(cfg Config, m *broadcast.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	s := &Server{
		config:  cfg,
		manager: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWebSocket)

	s.server = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	return s
}

// Listen serves until the context is canceled, then shuts the listener
// down within the configured timeout.
func (s *Server) Listen(ctx context.Context) error {
	s.logger.Info("websocket_server_starting",
		slog.String("addr", s.config.Address),
		slog.String("path", s.config.Path))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("websocket_server_shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("websocket_server_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("websocket_server_stopped")
		return nil
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	var h hello
	if err := conn.ReadJSON(&h); err != nil || h.ClientID == "" {
		s.logger.Warn("websocket_hello_failed", slog.String("remote_addr", r.RemoteAddr))
		conn.Close()
		return
	}

	link := transport.NewWSLink(conn, s.config.WriteTimeout)
	s.manager.RegisterClient(h.ClientID, link, h.X, h.Y)
	join := message.PlayerJoin{PlayerID: h.ClientID, X: h.X, Y: h.Y}
	s.manager.BroadcastToAll(join, message.DefaultPriority(join.Kind()), h.ClientID)

	go s.readLoop(h.ClientID, conn, link)
}

// readLoop consumes client frames until the connection drops, then tears
// the client's state down.
func (s *Server) readLoop(clientID string, conn *websocket.Conn, link *transport.WSLink) {
	defer func() {
		link.Close()
		s.manager.UnregisterClient(clientID)
		leave := message.PlayerLeave{PlayerID: clientID}
		s.manager.BroadcastToAll(leave, message.DefaultPriority(leave.Kind()), clientID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket_read_error",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.logger.Debug("invalid client frame", slog.String("client_id", clientID))
			continue
		}
		s.handleFrame(clientID, in)
	}
}

func (s *Server) handleFrame(clientID string, in inbound) {
	switch in.Type {
	case "position":
		if err := s.manager.UpdateClientPosition(clientID, in.X, in.Y); err != nil {
			s.logger.Debug("position update for unknown client",
				slog.String("client_id", clientID))
			return
		}
		pos := message.PlayerPosition{
			PlayerID: clientID,
			X:        in.X,
			Y:        in.Y,
		}
		s.manager.BroadcastToAll(pos, message.DefaultPriority(pos.Kind()), clientID)

	case "chat":
		chat := message.Chat{
			SenderID: clientID,
			Text:     in.Text,
			Global:   in.Global,
			X:        in.X,
			Y:        in.Y,
		}
		priority := message.DefaultPriority(chat.Kind())
		if in.Global {
			s.manager.BroadcastToAll(chat, priority, "")
		} else {
			s.manager.BroadcastProximity(in.X, in.Y, 0, chat, priority, "")
		}

	case "ack":
		s.manager.Acknowledge(in.MessageID, clientID)

	default:
		s.logger.Debug("unknown frame type",
			slog.String("client_id", clientID),
			slog.String("type", in.Type))
	}
}
