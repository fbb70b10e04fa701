// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gamecast server configuration from YAML with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/absmach/gamecast/broadcast"
)

// Config holds all configuration for the gamecast server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Queue     QueueConfig     `yaml:"queue"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Interest  InterestConfig  `yaml:"interest"`
	Compress  CompressConfig  `yaml:"compression"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	WSAddr          string        `yaml:"ws_addr"`
	WSPath          string        `yaml:"ws_path"`
	ReadLimit       int64         `yaml:"read_limit"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueueConfig holds the priority queue settings.
type QueueConfig struct {
	MaxSize      int           `yaml:"max_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// BroadcastConfig holds the distribution loop settings.
type BroadcastConfig struct {
	CompressionEnabled      bool          `yaml:"compression_enabled"`
	SpatialFilteringEnabled bool          `yaml:"spatial_filtering_enabled"`
	ReliableDeliveryEnabled bool          `yaml:"reliable_delivery_enabled"`
	ChunkBroadcastEnabled   bool          `yaml:"chunk_broadcast_enabled"`
	MaxRetryAttempts        int           `yaml:"max_retry_attempts"`
	RetryTimeout            time.Duration `yaml:"retry_timeout"`
	ProximityRange          float64       `yaml:"proximity_range"`
}

// InterestConfig holds the filter chain settings.
type InterestConfig struct {
	ChunkSize    int32   `yaml:"chunk_size"`
	ChunkRadius  int32   `yaml:"chunk_radius"`
	MaxDistance  float64 `yaml:"max_distance"`
	DeliveryRate float64 `yaml:"delivery_rate"`
}

// CompressConfig holds the compressor settings.
type CompressConfig struct {
	FullStateInterval time.Duration `yaml:"full_state_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			WSAddr:          ":8080",
			WSPath:          "/ws",
			ReadLimit:       1 << 20,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			MaxSize:      10000,
			BatchSize:    10,
			BatchTimeout: 50 * time.Millisecond,
		},
		Broadcast: BroadcastConfig{
			CompressionEnabled:      true,
			SpatialFilteringEnabled: true,
			ReliableDeliveryEnabled: true,
			ChunkBroadcastEnabled:   true,
			MaxRetryAttempts:        3,
			RetryTimeout:            5 * time.Second,
			ProximityRange:          100,
		},
		Interest: InterestConfig{
			ChunkSize:    64,
			ChunkRadius:  2,
			MaxDistance:  500,
			DeliveryRate: 10,
		},
		Compress: CompressConfig{
			FullStateInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file or empty
// filename yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.WSAddr == "" {
		return fmt.Errorf("server.ws_addr must not be empty")
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.max_size must be positive, got %d", c.Queue.MaxSize)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Broadcast.MaxRetryAttempts <= 0 {
		return fmt.Errorf("broadcast.max_retry_attempts must be positive, got %d", c.Broadcast.MaxRetryAttempts)
	}
	if c.Broadcast.ProximityRange <= 0 {
		return fmt.Errorf("broadcast.proximity_range must be positive, got %v", c.Broadcast.ProximityRange)
	}
	if c.Interest.ChunkSize <= 0 {
		return fmt.Errorf("interest.chunk_size must be positive, got %d", c.Interest.ChunkSize)
	}
	if c.Interest.DeliveryRate < 0 {
		return fmt.Errorf("interest.delivery_rate must not be negative, got %v", c.Interest.DeliveryRate)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}

// Options maps the configuration onto the broadcast manager's options.
func (c *Config) Options() broadcast.Options {
	return broadcast.Options{
		MaxQueueSize:      c.Queue.MaxSize,
		BatchSize:         c.Queue.BatchSize,
		BatchTimeout:      c.Queue.BatchTimeout,
		Compression:       c.Broadcast.CompressionEnabled,
		SpatialFiltering:  c.Broadcast.SpatialFilteringEnabled,
		ReliableDelivery:  c.Broadcast.ReliableDeliveryEnabled,
		ChunkBroadcast:    c.Broadcast.ChunkBroadcastEnabled,
		MaxRetryAttempts:  c.Broadcast.MaxRetryAttempts,
		RetryTimeout:      c.Broadcast.RetryTimeout,
		ProximityRange:    c.Broadcast.ProximityRange,
		ChunkSize:         c.Interest.ChunkSize,
		ChunkRadius:       c.Interest.ChunkRadius,
		MaxDistance:       c.Interest.MaxDistance,
		DeliveryRate:      c.Interest.DeliveryRate,
		FullStateInterval: c.Compress.FullStateInterval,
	}
}
