// Package config loads creaturelab configuration from YAML.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"creaturelab/internal/model"
	"creaturelab/internal/storage"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds everything the CLI needs to build a client.
type Config struct {
	Simulation model.SimulationConfig `yaml:"simulation"`
	Store      StoreConfig            `yaml:"store"`
	Log        LogConfig              `yaml:"log"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Kind string `yaml:"kind"` // memory or sqlite
	Path string `yaml:"path"` // sqlite database file
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the embedded defaults and overlays the file at path, if any.
// Only fields present in the file are overwritten.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	sim := c.Simulation
	if sim.SimulationDuration <= 0 {
		return fmt.Errorf("simulation.simulation_duration must be > 0, got %v", sim.SimulationDuration)
	}
	if sim.MaxAllowedFrequency <= 0 {
		return fmt.Errorf("simulation.max_allowed_frequency must be > 0, got %v", sim.MaxAllowedFrequency)
	}
	if sim.ArenaSize <= 0 {
		return fmt.Errorf("simulation.arena_size must be > 0, got %v", sim.ArenaSize)
	}
	if sim.Engine.Timestep < 0 || sim.Engine.FrameRate < 0 {
		return fmt.Errorf("simulation.engine timestep and frame_rate must not be negative")
	}
	if sim.Engine.Workers < 0 {
		return fmt.Errorf("simulation.engine.workers must not be negative, got %d", sim.Engine.Workers)
	}
	switch c.Store.Kind {
	case storage.KindMemory, storage.KindSQLite:
	default:
		return fmt.Errorf("store.kind must be memory or sqlite, got %q", c.Store.Kind)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
