package scape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"creaturelab/internal/logging"
	"creaturelab/internal/model"
	"creaturelab/internal/physics"
)

// Arena runs one creature through the pellet-collection task.
type Arena struct {
	cfg    model.SimulationConfig
	engine model.EngineConfig
	logger *slog.Logger
}

func NewArena(cfg model.SimulationConfig, logger *slog.Logger) *Arena {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Arena{
		cfg:    cfg,
		engine: cfg.Engine.WithDefaults(),
		logger: logger,
	}
}

// SimulateCreature is a convenience for a single evaluation with no logging.
func SimulateCreature(genome model.CreatureGenome, cfg model.SimulationConfig) (model.CreatureSimulationResult, error) {
	return NewArena(cfg, nil).Simulate(genome)
}

func (a *Arena) Name() string {
	return "pellet-arena"
}

func (a *Arena) Evaluate(ctx context.Context, genome model.CreatureGenome) (Fitness, Trace, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	result, err := a.Simulate(genome)
	if err != nil {
		return 0, nil, err
	}
	return Fitness(result.FinalFitness), Trace{
		"pellets_collected": result.PelletsCollected,
		"distance_traveled": result.DistanceTraveled,
		"net_displacement":  result.NetDisplacement,
		"disqualified":      result.Disqualified.String(),
	}, nil
}

// Simulate evaluates genome in a fresh physics world. An error is returned only
// for structurally invalid genomes; numerical failure ends up in Disqualified.
func (a *Arena) Simulate(genome model.CreatureGenome) (model.CreatureSimulationResult, error) {
	if err := ValidateGenome(genome); err != nil {
		return model.CreatureSimulationResult{}, err
	}
	rng := rand.New(rand.NewSource(a.engine.PelletSeed))

	for _, m := range genome.Muscles {
		if genome.EffectiveFrequency(m) > a.cfg.MaxAllowedFrequency {
			a.logger.Debug("creature disqualified before stepping",
				"genome", genome.ID,
				"muscle", m.ID,
				"frequency", genome.EffectiveFrequency(m),
				"max_allowed", a.cfg.MaxAllowedFrequency,
			)
			return a.restPoseResult(genome, rng), nil
		}
	}

	world, muscles, err := a.buildWorld(genome)
	if err != nil {
		return model.CreatureSimulationResult{}, err
	}

	dt := a.engine.Timestep
	totalSteps := int(math.Round(a.cfg.SimulationDuration / dt))
	if totalSteps < 1 {
		totalSteps = 1
	}
	frameInterval := int(math.Round(1 / (a.engine.FrameRate * dt)))
	if frameInterval < 1 {
		frameInterval = 1
	}

	bodies := world.Bodies()
	sizes := make(map[string]float64, len(genome.Nodes))
	for _, node := range genome.Nodes {
		sizes[node.ID] = node.Size
	}

	initialCOM := world.CenterOfMass()
	spawner := NewPelletSpawner(rng, a.cfg.ArenaSize, a.engine.MaxPellets)
	spawner.Spawn(initialCOM, 0)
	// Displacement is measured from the first captured frame, as on replay.
	var originCOM r3.Vec

	frames := make([]model.SimulationFrame, 0, totalSteps/frameInterval+2)
	fitnessOverTime := make([]float64, 0, cap(frames))
	disqualified := model.DisqualifiedNone
	collected := 0
	pathLength := 0.0
	closest := math.Inf(1)
	var lastCOM r3.Vec

	for step := 0; step < totalSteps; step++ {
		t := float64(step) * dt
		muscles.Apply(t)
		world.Step(dt)

		positions := make(map[string]model.Vector3, len(bodies))
		for _, b := range bodies {
			pos, ok := finiteVec(b.Position)
			if !ok && !disqualified.IsDisqualified() {
				disqualified = model.DisqualifiedNaNPosition
				a.logger.Debug("non-finite node position", "genome", genome.ID, "node", b.ID, "step", step)
			}
			if ok && !disqualified.IsDisqualified() &&
				(r3.Norm(pos) > a.engine.ExplosionDistance || pos.Y > a.engine.ExplosionHeight) {
				disqualified = model.DisqualifiedPhysicsExplosion
				a.logger.Debug("physics explosion", "genome", genome.ID, "node", b.ID, "step", step)
			}
			positions[b.ID] = model.FromVec(pos)
		}

		if active := spawner.Active(); active >= 0 {
			target := spawner.Pellet(active).Position.Vec()
			for _, b := range bodies {
				pos, ok := finiteVec(b.Position)
				if !ok {
					continue
				}
				if r3.Norm(r3.Sub(pos, target)) <= CollectRadius(sizes[b.ID]) {
					frame := len(frames)
					spawner.Collect(active, frame)
					collected++
					center, ok := finiteVec(world.CenterOfMass())
					if !ok {
						center = initialCOM
					}
					spawner.Spawn(center, frame)
					break
				}
			}
		}

		if step%frameInterval != 0 && step != totalSteps-1 {
			continue
		}

		com, _ := finiteVec(world.CenterOfMass())
		if len(frames) > 0 {
			pathLength += r3.Norm(r3.Sub(com, lastCOM))
		} else {
			originCOM = com
		}
		lastCOM = com

		active := spawner.Active()
		state := FitnessState{
			CenterOfMass:        com,
			InitialCenterOfMass: originCOM,
			PathLength:          pathLength,
			PelletsCollected:    collected,
			Disqualified:        disqualified,
		}
		if active >= 0 {
			target := spawner.Pellet(active).Position.Vec()
			state.ActivePellet = &target
			closest = math.Min(closest, r3.Norm(r3.Sub(com, target)))
		}

		frames = append(frames, model.SimulationFrame{
			Time:              float64(step+1) * dt,
			NodePositions:     positions,
			CenterOfMass:      model.FromVec(com),
			ActivePelletIndex: active,
		})
		fitnessOverTime = append(fitnessOverTime, EvaluateFitness(state, a.cfg.FitnessWeights))
	}

	finalState := FitnessState{
		CenterOfMass:        lastCOM,
		InitialCenterOfMass: originCOM,
		PathLength:          pathLength,
		PelletsCollected:    collected,
		Disqualified:        disqualified,
	}
	if active := spawner.Active(); active >= 0 {
		target := spawner.Pellet(active).Position.Vec()
		finalState.ActivePellet = &target
	}
	finalFitness := EvaluateFitness(finalState, a.cfg.FitnessWeights)

	if disqualified.IsDisqualified() {
		for i := range fitnessOverTime {
			fitnessOverTime[i] = FloorFitness
		}
	}
	if math.IsInf(closest, 1) {
		closest = 0
	}

	return model.CreatureSimulationResult{
		Genome:                genome,
		Frames:                frames,
		FinalFitness:          finalFitness,
		PelletsCollected:      collected,
		DistanceTraveled:      pathLength,
		NetDisplacement:       r3.Norm(r3.Sub(lastCOM, originCOM)),
		ClosestPelletDistance: closest,
		Pellets:               spawner.Pellets(),
		FitnessOverTime:       fitnessOverTime,
		Disqualified:          disqualified,
	}, nil
}

func (a *Arena) buildWorld(genome model.CreatureGenome) (*physics.World, *physics.MuscleSystem, error) {
	world := physics.NewWorld(physics.Config{
		Gravity:        a.cfg.Gravity,
		GroundFriction: a.cfg.GroundFriction,
		LinearDamping:  physics.DefaultLinearDamping,
	})
	for _, node := range genome.Nodes {
		if _, err := world.AddBody(node.ID, node.Position.Vec(), node.Size/2, node.Size, node.Friction); err != nil {
			return nil, nil, fmt.Errorf("genome %s: %w", genome.ID, err)
		}
	}

	specs := make([]physics.MuscleSpec, 0, len(genome.Muscles))
	for _, m := range genome.Muscles {
		specs = append(specs, physics.MuscleSpec{
			NodeA:          m.NodeA,
			NodeB:          m.NodeB,
			BaseRestLength: m.RestLength,
			Stiffness:      m.Stiffness,
			Damping:        m.Damping,
			Frequency:      genome.EffectiveFrequency(m),
			Amplitude:      m.Amplitude,
			Phase:          m.Phase,
		})
	}
	muscles, err := physics.NewMuscleSystem(world, specs)
	if err != nil {
		return nil, nil, fmt.Errorf("genome %s: %w", genome.ID, err)
	}
	return world, muscles, nil
}

// restPoseResult is the single-frame result for a creature rejected before stepping.
func (a *Arena) restPoseResult(genome model.CreatureGenome, rng *rand.Rand) model.CreatureSimulationResult {
	positions := make(map[string]model.Vector3, len(genome.Nodes))
	var weighted r3.Vec
	total := 0.0
	for _, node := range genome.Nodes {
		positions[node.ID] = node.Position
		weighted = r3.Add(weighted, r3.Scale(node.Size, node.Position.Vec()))
		total += node.Size
	}
	com := r3.Scale(1/total, weighted)

	spawner := NewPelletSpawner(rng, a.cfg.ArenaSize, a.engine.MaxPellets)
	pellet, _ := spawner.Spawn(com, 0)

	return model.CreatureSimulationResult{
		Genome: genome,
		Frames: []model.SimulationFrame{{
			Time:              0,
			NodePositions:     positions,
			CenterOfMass:      model.FromVec(com),
			ActivePelletIndex: 0,
		}},
		FinalFitness:          FloorFitness,
		ClosestPelletDistance: r3.Norm(r3.Sub(com, pellet.Position.Vec())),
		Pellets:               spawner.Pellets(),
		FitnessOverTime:       []float64{FloorFitness},
		Disqualified:          model.DisqualifiedFrequencyExceeded,
	}
}

var ErrInvalidGenome = errors.New("invalid genome")

// ValidateGenome checks the structural guarantees the simulation relies on.
func ValidateGenome(genome model.CreatureGenome) error {
	if len(genome.Nodes) == 0 {
		return fmt.Errorf("%w: %s has no nodes", ErrInvalidGenome, genome.ID)
	}
	ids := make(map[string]struct{}, len(genome.Nodes))
	for i, node := range genome.Nodes {
		if node.ID == "" {
			return fmt.Errorf("%w: %s node %d has empty id", ErrInvalidGenome, genome.ID, i)
		}
		if _, exists := ids[node.ID]; exists {
			return fmt.Errorf("%w: %s duplicate node id %s", ErrInvalidGenome, genome.ID, node.ID)
		}
		if !(node.Size > 0) {
			return fmt.Errorf("%w: %s node %s size must be > 0", ErrInvalidGenome, genome.ID, node.ID)
		}
		ids[node.ID] = struct{}{}
	}
	for i, m := range genome.Muscles {
		if _, ok := ids[m.NodeA]; !ok {
			return fmt.Errorf("%w: %s muscle %d references unknown node %s", ErrInvalidGenome, genome.ID, i, m.NodeA)
		}
		if _, ok := ids[m.NodeB]; !ok {
			return fmt.Errorf("%w: %s muscle %d references unknown node %s", ErrInvalidGenome, genome.ID, i, m.NodeB)
		}
	}
	return nil
}
