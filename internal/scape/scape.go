package scape

import (
	"context"

	"creaturelab/internal/model"
)

type Fitness float64

type Trace map[string]any

// Scape scores a genome in some environment.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, genome model.CreatureGenome) (Fitness, Trace, error)
}

// Simulator exposes the full motion trace in addition to the score.
type Simulator interface {
	Scape
	Simulate(genome model.CreatureGenome) (model.CreatureSimulationResult, error)
}
