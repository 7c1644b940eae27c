package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Simulation.Gravity != -9.82 || cfg.Simulation.MaxAllowedFrequency != 3 {
		t.Fatalf("unexpected simulation defaults: %+v", cfg.Simulation)
	}
	if cfg.Simulation.FitnessWeights.PelletWeight != 100 {
		t.Fatalf("unexpected pellet weight: %v", cfg.Simulation.FitnessWeights.PelletWeight)
	}
	if cfg.Simulation.Engine.FrameRate != 15 || cfg.Simulation.Engine.MaxPellets != 10 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Simulation.Engine)
	}
	if cfg.Store.Kind != "memory" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected store/log defaults: %+v %+v", cfg.Store, cfg.Log)
	}
	if len(cfg.Simulation.Extra) != 0 {
		t.Fatalf("expected no extra settings, got %+v", cfg.Simulation.Extra)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte(`
simulation:
  simulation_duration: 3
  population_size: 40
  fitness_weights:
    base_fitness: 50
store:
  kind: sqlite
  path: /tmp/lab.db
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.SimulationDuration != 3 {
		t.Fatalf("expected overridden duration, got %v", cfg.Simulation.SimulationDuration)
	}
	if cfg.Simulation.FitnessWeights.BaseFitness != 50 || cfg.Simulation.FitnessWeights.PelletWeight != 100 {
		t.Fatalf("expected partial overlay of weights, got %+v", cfg.Simulation.FitnessWeights)
	}
	if cfg.Simulation.Gravity != -9.82 {
		t.Fatalf("expected default gravity to survive overlay, got %v", cfg.Simulation.Gravity)
	}
	if cfg.Simulation.Extra["population_size"] != 40 {
		t.Fatalf("expected unknown settings to be carried in Extra, got %+v", cfg.Simulation.Extra)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.Path != "/tmp/lab.db" {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero duration":    "simulation:\n  simulation_duration: 0\n",
		"unknown store":    "store:\n  kind: redis\n",
		"negative workers": "simulation:\n  engine:\n    workers: -2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Simulation.ArenaSize = 42
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Simulation.ArenaSize != 42 {
		t.Fatalf("expected arena size 42, got %v", reloaded.Simulation.ArenaSize)
	}
}
