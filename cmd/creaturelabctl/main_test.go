package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"creaturelab/internal/model"
)

func walkerGenome(id string, multiplier float64) model.CreatureGenome {
	return model.CreatureGenome{
		ID: id,
		Nodes: []model.NodeGene{
			{ID: "n0", Position: model.Vector3{X: 0, Y: 0.5}, Size: 0.6, Friction: 0.6},
			{ID: "n1", Position: model.Vector3{X: 1.2, Y: 0.5}, Size: 0.4, Friction: 0.4},
		},
		Muscles: []model.MuscleGene{{
			ID: "m0", NodeA: "n0", NodeB: "n1",
			RestLength: 1.2, Stiffness: 40, Damping: 0.5,
			Frequency: 1, Amplitude: 0.3,
		}},
		GlobalFrequencyMultiplier: multiplier,
	}
}

func writeGenomeFile(t *testing.T, value any) string {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal genomes: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genomes.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write genomes: %v", err)
	}
	return path
}

// writeShortConfig keeps simulations quick in tests.
func writeShortConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "simulation:\n  simulation_duration: 2\nstore:\n  kind: memory\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSimulateCommandJSON(t *testing.T) {
	genomePath := writeGenomeFile(t, walkerGenome("walker", 1))
	stdout, _, err := execute(t, "--config", writeShortConfig(t), "--json", "simulate", genomePath)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	var view resultView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode output %q: %v", stdout, err)
	}
	if view.GenomeID != "walker" || view.Disqualified != "none" {
		t.Fatalf("unexpected result: %+v", view)
	}
	if view.Frames == 0 || view.FinalFitness <= 0 {
		t.Fatalf("expected frames and positive fitness, got %+v", view)
	}
}

func TestSimulateCommandTextReportsDisqualification(t *testing.T) {
	genomePath := writeGenomeFile(t, walkerGenome("jitter", 10))
	stdout, _, err := execute(t, "--config", writeShortConfig(t), "simulate", genomePath)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !strings.Contains(stdout, "frequency_exceeded") {
		t.Fatalf("expected disqualification in output, got:\n%s", stdout)
	}
}

func TestSimulateCommandRejectsPopulationFile(t *testing.T) {
	genomePath := writeGenomeFile(t, []model.CreatureGenome{walkerGenome("a", 1), walkerGenome("b", 1)})
	if _, _, err := execute(t, "--config", writeShortConfig(t), "simulate", genomePath); err == nil {
		t.Fatal("expected error for multi-genome file")
	}
}

func TestEvaluateCommandJSON(t *testing.T) {
	genomePath := writeGenomeFile(t, []model.CreatureGenome{walkerGenome("a", 1), walkerGenome("b", 10)})
	stdout, _, err := execute(t, "--config", writeShortConfig(t), "--json", "evaluate", genomePath)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var out struct {
		RunID        string `json:"runId"`
		Generation   int    `json:"generation"`
		BestGenomeID string `json:"bestGenomeId"`
		Disqualified int    `json:"disqualified"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode output %q: %v", stdout, err)
	}
	if out.RunID == "" || out.Generation != 0 {
		t.Fatalf("unexpected run/generation: %+v", out)
	}
	if out.BestGenomeID != "a" || out.Disqualified != 1 {
		t.Fatalf("unexpected evaluation summary: %+v", out)
	}
}

func TestEvaluateCommandTextReportsProgress(t *testing.T) {
	genomePath := writeGenomeFile(t, walkerGenome("solo", 1))
	stdout, stderr, err := execute(t, "--config", writeShortConfig(t), "evaluate", genomePath)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(stderr, "simulated 1/1") {
		t.Fatalf("expected progress on stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "generation 0") {
		t.Fatalf("expected generation summary, got %q", stdout)
	}
}

func TestRunsCommandEmptyStore(t *testing.T) {
	stdout, _, err := execute(t, "--config", writeShortConfig(t), "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(stdout, "No runs stored.") {
		t.Fatalf("unexpected output: %q", stdout)
	}

	stdout, _, err = execute(t, "--config", writeShortConfig(t), "--json", "runs")
	if err != nil {
		t.Fatalf("runs --json: %v", err)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Fatalf("expected empty JSON list, got %q", stdout)
	}
}

func TestShowCommandUnknownRun(t *testing.T) {
	if _, _, err := execute(t, "--config", writeShortConfig(t), "show", "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSchemaCommand(t *testing.T) {
	stdout, _, err := execute(t, "schema", "generation")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(stdout), &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if _, ok := schema["properties"]; !ok {
		t.Fatalf("expected properties in schema, got %v", schema)
	}

	if _, _, err := execute(t, "schema", "bogus"); err == nil {
		t.Fatal("expected error for unknown schema kind")
	}
}

func TestStoreFlagOverridesConfig(t *testing.T) {
	if _, _, err := execute(t, "--config", writeShortConfig(t), "--store", "carrier-pigeon", "runs"); err == nil {
		t.Fatal("expected unknown store kind to fail")
	}
}

func TestReadGenomesAcceptsObjectOrArray(t *testing.T) {
	single, err := readGenomes(writeGenomeFile(t, walkerGenome("one", 1)))
	if err != nil || len(single) != 1 || single[0].ID != "one" {
		t.Fatalf("single genome: %v %+v", err, single)
	}
	many, err := readGenomes(writeGenomeFile(t, []model.CreatureGenome{walkerGenome("a", 1), walkerGenome("b", 1)}))
	if err != nil || len(many) != 2 {
		t.Fatalf("genome array: %v %+v", err, many)
	}
	if _, err := readGenomes(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSimulateCommandScoreOnly(t *testing.T) {
	genomePath := writeGenomeFile(t, walkerGenome("walker", 1))
	stdout, _, err := execute(t, "--config", writeShortConfig(t), "--json", "simulate", "--score-only", genomePath)
	if err != nil {
		t.Fatalf("simulate --score-only: %v", err)
	}
	var out struct {
		Scape   string         `json:"scape"`
		Fitness float64        `json:"fitness"`
		Trace   map[string]any `json:"trace"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode output %q: %v", stdout, err)
	}
	if out.Scape != "pellet-arena" || out.Fitness <= 0 {
		t.Fatalf("unexpected score: %+v", out)
	}
	if out.Trace["disqualified"] != "none" {
		t.Fatalf("unexpected trace: %+v", out.Trace)
	}
}

func TestConfigWriteCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effective.yaml")
	if _, _, err := execute(t, "--config", writeShortConfig(t), "--log-level", "debug", "config", "write", path); err != nil {
		t.Fatalf("config write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	for _, want := range []string{"simulation_duration: 2", "level: debug", "kind: memory"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %q in written config:\n%s", want, data)
		}
	}
}
