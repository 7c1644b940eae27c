package evo

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"creaturelab/internal/model"
)

// SummarizeFitness reduces one generation to its best, mean and worst final fitness.
func SummarizeFitness(generation int, results []model.CreatureSimulationResult) model.FitnessHistoryEntry {
	if len(results) == 0 {
		return model.FitnessHistoryEntry{Generation: generation}
	}
	fitness := make([]float64, len(results))
	for i, r := range results {
		fitness[i] = r.FinalFitness
	}
	return model.FitnessHistoryEntry{
		Generation: generation,
		Best:       floats.Max(fitness),
		Average:    stat.Mean(fitness, nil),
		Worst:      floats.Min(fitness),
	}
}

// SummarizeCreatureTypes counts creatures by node count.
func SummarizeCreatureTypes(generation int, results []model.CreatureSimulationResult) model.CreatureTypeHistoryEntry {
	counts := make(map[int]int)
	for _, r := range results {
		counts[len(r.Genome.Nodes)]++
	}
	return model.CreatureTypeHistoryEntry{Generation: generation, NodeCounts: counts}
}

// Best returns the index of the highest-scoring result, or -1 for an empty slice.
// Ties keep the earliest creature.
func Best(results []model.CreatureSimulationResult) int {
	best := -1
	for i, r := range results {
		if best < 0 || r.FinalFitness > results[best].FinalFitness {
			best = i
		}
	}
	return best
}
