// Package config loads runtime configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, ANCHOR_*
// environment variables, then command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/anchor/internal/replay"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "ANCHOR_"

// Config is the complete runtime configuration.
type Config struct {
	Mode      string `yaml:"mode" env:"MODE"`
	Recording string `yaml:"recording" env:"RECORDING"`
	// Ledger is the SQLite checksum ledger path; empty disables it.
	Ledger string `yaml:"ledger" env:"LEDGER"`

	Sim       SimConfig       `yaml:"sim" envPrefix:"SIM_"`
	World     WorldConfig     `yaml:"world" envPrefix:"WORLD_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Render    RenderConfig    `yaml:"render" envPrefix:"RENDER_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// SimConfig controls the tick loop.
type SimConfig struct {
	TickRate   float64 `yaml:"tick_rate" env:"TICK_RATE"`
	FloorY     float32 `yaml:"floor_y" env:"FLOOR_Y"`
	FloorClamp bool    `yaml:"floor_clamp" env:"FLOOR_CLAMP"`
	// Ticks stops the run after this many ticks; 0 runs until stopped.
	Ticks uint64 `yaml:"ticks" env:"TICKS"`
}

// WorldConfig sizes the diff history.
type WorldConfig struct {
	History    int `yaml:"history" env:"HISTORY"`
	Tombstones int `yaml:"tombstones" env:"TOMBSTONES"`
}

// ServerConfig controls the sync service. An empty Listen disables it.
type ServerConfig struct {
	Listen   string `yaml:"listen" env:"LISTEN"`
	ReadOnly bool   `yaml:"read_only" env:"READ_ONLY"`
}

// RenderConfig selects the visual host backend.
type RenderConfig struct {
	Backend    string `yaml:"backend" env:"BACKEND"`
	EveryTicks uint64 `yaml:"every_ticks" env:"EVERY_TICKS"`
}

// TelemetryConfig controls tracing and tick timing reports.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `yaml:"otel_enabled" env:"OTEL_ENABLED"`
	// MetricsEvery logs tick timing averages every N ticks; 0 disables.
	MetricsEvery uint64 `yaml:"metrics_every" env:"METRICS_EVERY"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode: string(replay.KindNormal),
		Sim: SimConfig{
			TickRate:   60,
			FloorClamp: true,
		},
		World: WorldConfig{
			History:    256,
			Tombstones: 0, // remember every evicted checksum
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
		},
		Render: RenderConfig{
			Backend:    "none",
			EveryTicks: 1,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "anchor",
			OTelEnabled:  true,
			MetricsEvery: 600,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path (optional), then the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ means
// the process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML decodes strictly: unknown keys are errors. An empty document
// leaves cfg untouched.
func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if _, err := c.SimulationMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Sim.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("sim.tick_rate must be positive, got %v", c.Sim.TickRate))
	}
	if c.World.History < 1 {
		errs = append(errs, fmt.Errorf("world.history must be at least 1, got %d", c.World.History))
	}
	if c.World.Tombstones < 0 {
		errs = append(errs, fmt.Errorf("world.tombstones must not be negative, got %d", c.World.Tombstones))
	}
	switch c.Render.Backend {
	case "none", "mock":
	default:
		errs = append(errs, fmt.Errorf("render.backend must be none or mock, got %q", c.Render.Backend))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SimulationMode returns the mode the config selects.
func (c Config) SimulationMode() (replay.Mode, error) {
	return replay.ParseMode(c.Mode, c.Recording)
}

// ReadOnly reports whether the sync service must refuse intent writes.
func (c Config) ReadOnly() bool {
	m, err := c.SimulationMode()
	return c.Server.ReadOnly || (err == nil && m.ReadOnly())
}
