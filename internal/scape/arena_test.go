package scape

import (
	"context"
	"errors"
	"math"
	"testing"

	"creaturelab/internal/model"
)

func walkerGenome(multiplier float64) model.CreatureGenome {
	return model.CreatureGenome{
		ID: "walker",
		Nodes: []model.NodeGene{
			{ID: "n0", Position: model.Vector3{X: 0, Y: 0.5, Z: 0}, Size: 0.6, Friction: 0.7},
			{ID: "n1", Position: model.Vector3{X: 1.2, Y: 0.5, Z: 0}, Size: 0.4, Friction: 0.2},
		},
		Muscles: []model.MuscleGene{{
			ID: "m0", NodeA: "n0", NodeB: "n1",
			RestLength: 1.2, Stiffness: 40, Damping: 0.5,
			Frequency: 1, Amplitude: 0.3,
		}},
		GlobalFrequencyMultiplier: multiplier,
	}
}

func arenaConfig() model.SimulationConfig {
	return model.SimulationConfig{
		Gravity:             -9.82,
		GroundFriction:      0.8,
		SimulationDuration:  4,
		MaxAllowedFrequency: 3,
		ArenaSize:           20,
		FitnessWeights: model.FitnessWeights{
			BaseFitness:          10,
			PelletWeight:         100,
			ProximityWeight:      2,
			ProximityMaxDistance: 10,
			MovementWeight:       1,
			MovementCap:          5,
		},
		Engine: model.EngineConfig{PelletSeed: 11},
	}
}

func TestSimulateFullDuration(t *testing.T) {
	result, err := SimulateCreature(walkerGenome(1), arenaConfig())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified.IsDisqualified() {
		t.Fatalf("expected no disqualification, got %s", result.Disqualified)
	}
	// 240 steps at 1/60s captured every 4 steps plus the final step.
	if len(result.Frames) != 61 {
		t.Fatalf("expected 61 frames, got %d", len(result.Frames))
	}
	if len(result.FitnessOverTime) != len(result.Frames) {
		t.Fatalf("fitness curve length %d != frames %d", len(result.FitnessOverTime), len(result.Frames))
	}
	if last := result.Frames[len(result.Frames)-1].Time; math.Abs(last-4) > 1e-9 {
		t.Fatalf("expected final frame at t=4, got %f", last)
	}
	for i, f := range result.FitnessOverTime {
		if f < FloorFitness {
			t.Fatalf("fitness at frame %d below floor: %f", i, f)
		}
	}
	if result.FinalFitness < FloorFitness {
		t.Fatalf("final fitness below floor: %f", result.FinalFitness)
	}
	if len(result.Pellets) == 0 {
		t.Fatal("expected at least one pellet to be spawned")
	}
	for i, frame := range result.Frames {
		if len(frame.NodePositions) != 2 {
			t.Fatalf("frame %d has %d node positions", i, len(frame.NodePositions))
		}
		active := 0
		for _, p := range result.Pellets {
			if p.ActiveAt(i) {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("frame %d has %d active pellets", i, active)
		}
	}
}

func TestSimulateFrequencyExceeded(t *testing.T) {
	result, err := SimulateCreature(walkerGenome(10), arenaConfig())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified != model.DisqualifiedFrequencyExceeded {
		t.Fatalf("expected frequency_exceeded, got %s", result.Disqualified)
	}
	if len(result.Frames) != 1 {
		t.Fatalf("expected a single frame, got %d", len(result.Frames))
	}
	if result.FinalFitness != FloorFitness {
		t.Fatalf("expected floor fitness, got %f", result.FinalFitness)
	}
	if len(result.FitnessOverTime) != 1 || result.FitnessOverTime[0] != FloorFitness {
		t.Fatalf("unexpected fitness curve: %v", result.FitnessOverTime)
	}
	if pos := result.Frames[0].NodePositions["n1"]; pos.X != 1.2 || pos.Y != 0.5 {
		t.Fatalf("expected rest pose, got %+v", pos)
	}
}

func TestSimulateBaseFitnessOnly(t *testing.T) {
	cfg := arenaConfig()
	cfg.FitnessWeights = model.FitnessWeights{BaseFitness: 50}
	result, err := SimulateCreature(walkerGenome(1), cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified.IsDisqualified() {
		t.Fatalf("unexpected disqualification: %s", result.Disqualified)
	}
	if result.FinalFitness < 50 {
		t.Fatalf("expected final fitness >= 50, got %f", result.FinalFitness)
	}
}

func TestSimulateIsDeterministic(t *testing.T) {
	first, err := SimulateCreature(walkerGenome(1), arenaConfig())
	if err != nil {
		t.Fatalf("first simulate: %v", err)
	}
	second, err := SimulateCreature(walkerGenome(1), arenaConfig())
	if err != nil {
		t.Fatalf("second simulate: %v", err)
	}
	if first.FinalFitness != second.FinalFitness || first.DistanceTraveled != second.DistanceTraveled {
		t.Fatalf("runs diverged: %f/%f vs %f/%f", first.FinalFitness, first.DistanceTraveled, second.FinalFitness, second.DistanceTraveled)
	}
	if len(first.Pellets) != len(second.Pellets) || first.Pellets[0].Position != second.Pellets[0].Position {
		t.Fatalf("pellet placement diverged: %+v vs %+v", first.Pellets, second.Pellets)
	}
}

func TestSimulateExplosionDisqualifies(t *testing.T) {
	genome := walkerGenome(1)
	genome.Muscles[0].Stiffness = 1e7
	genome.Muscles[0].Damping = 0

	result, err := SimulateCreature(genome, arenaConfig())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified != model.DisqualifiedPhysicsExplosion && result.Disqualified != model.DisqualifiedNaNPosition {
		t.Fatalf("expected numerical disqualification, got %q", result.Disqualified)
	}
	if result.FinalFitness != FloorFitness {
		t.Fatalf("expected floor fitness, got %f", result.FinalFitness)
	}
	for i, f := range result.FitnessOverTime {
		if f != FloorFitness {
			t.Fatalf("expected floor fitness at frame %d, got %f", i, f)
		}
	}
	for i, frame := range result.Frames {
		for id, pos := range frame.NodePositions {
			if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
				t.Fatalf("frame %d node %s carries NaN", i, id)
			}
		}
	}
}

func TestSimulateNaNPositionDisqualifies(t *testing.T) {
	genome := walkerGenome(1)
	genome.Muscles[0].Stiffness = 1e306
	genome.Muscles[0].RestLength = 1e5

	result, err := SimulateCreature(genome, arenaConfig())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified != model.DisqualifiedNaNPosition {
		t.Fatalf("expected nan_position, got %q", result.Disqualified)
	}
	if result.FinalFitness != FloorFitness {
		t.Fatalf("expected floor fitness, got %f", result.FinalFitness)
	}
	last := result.Frames[len(result.Frames)-1]
	for id, pos := range last.NodePositions {
		if pos != (model.Vector3{}) {
			t.Fatalf("node %s: expected non-finite position recorded as origin, got %+v", id, pos)
		}
	}
}

// bigFootGenome reaches every pellet in a small arena without moving far.
func bigFootGenome() model.CreatureGenome {
	genome := walkerGenome(1)
	genome.ID = "big-foot"
	genome.Nodes[0].Size = 6
	genome.Nodes[1].Size = 6
	return genome
}

func TestSimulateCollectsPellets(t *testing.T) {
	cfg := arenaConfig()
	cfg.ArenaSize = 4
	cfg.FitnessWeights.DistanceWeight = 1
	cfg.FitnessWeights.DistanceCap = 10

	result, err := SimulateCreature(bigFootGenome(), cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Disqualified.IsDisqualified() {
		t.Fatalf("expected no disqualification, got %s", result.Disqualified)
	}
	if result.PelletsCollected < 2 {
		t.Fatalf("expected several pellets collected, got %d", result.PelletsCollected)
	}

	collected := 0
	for i, p := range result.Pellets {
		if p.CollectedAtFrame == nil {
			continue
		}
		collected++
		if *p.CollectedAtFrame < p.SpawnedAtFrame || *p.CollectedAtFrame >= len(result.Frames) {
			t.Fatalf("pellet %d collected at frame %d, spawned at %d", i, *p.CollectedAtFrame, p.SpawnedAtFrame)
		}
		if i+1 < len(result.Pellets) && result.Pellets[i+1].SpawnedAtFrame != *p.CollectedAtFrame {
			t.Fatalf("pellet %d spawned at frame %d, want %d", i+1, result.Pellets[i+1].SpawnedAtFrame, *p.CollectedAtFrame)
		}
	}
	if collected != result.PelletsCollected {
		t.Fatalf("collected counter %d != pellets marked collected %d", result.PelletsCollected, collected)
	}

	w := cfg.FitnessWeights
	if last := result.FitnessOverTime[len(result.FitnessOverTime)-1]; last < w.BaseFitness+w.PelletWeight*float64(collected) {
		t.Fatalf("final frame fitness %f lacks pellet contribution for %d pellets", last, collected)
	}
	first := *result.Pellets[0].CollectedAtFrame
	if first > 0 && result.FitnessOverTime[first-1] >= w.BaseFitness+w.PelletWeight {
		t.Fatalf("pellet contribution appears before frame %d: %f", first, result.FitnessOverTime[first-1])
	}

	// Replay sees the same frames, so the curve must match exactly.
	replayed := RecalculateFitnessOverTime(result.Frames, result.Pellets, w, result.Disqualified)
	for i := range replayed {
		if math.Abs(replayed[i]-result.FitnessOverTime[i]) > 1e-9 {
			t.Fatalf("frame %d: live fitness %f, replayed %f", i, result.FitnessOverTime[i], replayed[i])
		}
	}
}

func TestSimulateRejectsInvalidGenome(t *testing.T) {
	cases := map[string]model.CreatureGenome{
		"no nodes": {ID: "empty"},
		"duplicate node": {ID: "dup", Nodes: []model.NodeGene{
			{ID: "a", Size: 1}, {ID: "a", Size: 1},
		}},
		"zero size": {ID: "flat", Nodes: []model.NodeGene{{ID: "a"}}},
		"dangling muscle": {ID: "dangling",
			Nodes:   []model.NodeGene{{ID: "a", Size: 1}},
			Muscles: []model.MuscleGene{{ID: "m", NodeA: "a", NodeB: "b"}},
		},
	}
	for name, genome := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := SimulateCreature(genome, arenaConfig())
			if !errors.Is(err, ErrInvalidGenome) {
				t.Fatalf("expected ErrInvalidGenome, got %v", err)
			}
		})
	}
}

func TestArenaEvaluateMatchesSimulate(t *testing.T) {
	arena := NewArena(arenaConfig(), nil)
	fitness, trace, err := arena.Evaluate(context.Background(), walkerGenome(1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	result, err := arena.Simulate(walkerGenome(1))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if float64(fitness) != result.FinalFitness {
		t.Fatalf("fitness mismatch: evaluate=%f simulate=%f", fitness, result.FinalFitness)
	}
	if trace["disqualified"] != "none" {
		t.Fatalf("unexpected trace: %+v", trace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := arena.Evaluate(ctx, walkerGenome(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
