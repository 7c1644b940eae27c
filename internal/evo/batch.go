package evo

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"creaturelab/internal/logging"
	"creaturelab/internal/model"
	"creaturelab/internal/scape"
)

// ProgressFunc is called once per finished creature with a strictly increasing completed count.
type ProgressFunc func(completed, total int)

type BatchConfig struct {
	Simulation model.SimulationConfig
	// Simulator defaults to a pellet arena built from Simulation.
	Simulator scape.Simulator
	Logger    *slog.Logger
}

// BatchSimulator evaluates whole populations. Every creature gets its own
// physics world, so workers share nothing but the input and output slices.
type BatchSimulator struct {
	simulator scape.Simulator
	workers   int
	logger    *slog.Logger
}

func NewBatchSimulator(cfg BatchConfig) (*BatchSimulator, error) {
	if cfg.Simulation.SimulationDuration < 0 {
		return nil, fmt.Errorf("simulation duration must be >= 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	simulator := cfg.Simulator
	if simulator == nil {
		simulator = scape.NewArena(cfg.Simulation, logger)
	}
	return &BatchSimulator{
		simulator: simulator,
		workers:   cfg.Simulation.Engine.WithDefaults().Workers,
		logger:    logger,
	}, nil
}

func (b *BatchSimulator) SimulateCreature(genome model.CreatureGenome) (model.CreatureSimulationResult, error) {
	return b.simulator.Simulate(genome)
}

// SimulatePopulation returns one result per genome in input order. Cancelling
// ctx stops new creatures from starting; a creature already running finishes.
func (b *BatchSimulator) SimulatePopulation(
	ctx context.Context,
	genomes []model.CreatureGenome,
	onProgress ProgressFunc,
) ([]model.CreatureSimulationResult, error) {
	type job struct {
		idx    int
		genome model.CreatureGenome
	}
	type result struct {
		idx    int
		result model.CreatureSimulationResult
		err    error
	}

	if len(genomes) == 0 {
		return []model.CreatureSimulationResult{}, nil
	}

	jobs := make(chan job)
	results := make(chan result, len(genomes))

	workerCount := b.workers
	if workerCount > len(genomes) {
		workerCount = len(genomes)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				res, err := b.simulator.Simulate(j.genome)
				results <- result{idx: j.idx, result: res, err: err}
				runtime.Gosched()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range genomes {
			select {
			case jobs <- job{idx: i, genome: genomes[i]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]model.CreatureSimulationResult, len(genomes))
	completed := 0
	disqualified := 0
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out[res.idx] = res.result
		completed++
		if res.result.Disqualified.IsDisqualified() {
			disqualified++
		}
		if onProgress != nil {
			onProgress(completed, len(genomes))
		}
	}

	if firstErr == nil && completed < len(genomes) {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	b.logger.Info("population simulated",
		"creatures", len(genomes),
		"disqualified", disqualified,
		"workers", workerCount,
	)
	return out, nil
}
