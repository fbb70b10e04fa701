// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// gamecast is the standalone message distribution server. It exposes the
// broadcast pipeline over WebSocket for game clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/gamecast/broadcast"
	"github.com/absmach/gamecast/config"
	"github.com/absmach/gamecast/monitor"
	"github.com/absmach/gamecast/server/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	perf := monitor.NewPerformance()

	opts := cfg.Options()
	opts.Logger = logger
	opts.Monitor = perf
	manager := broadcast.NewManager(opts)
	defer manager.Shutdown()

	server := ws.New(ws.Config{
		Address:         cfg.Server.WSAddr,
		Path:            cfg.Server.WSPath,
		ReadLimit:       cfg.Server.ReadLimit,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Listen(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("final statistics", slog.Any("stats", manager.Statistics()))
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
