package scape

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"creaturelab/internal/model"
)

// FloorFitness is the lowest score any creature can receive.
const FloorFitness = 1.0

// FitnessState is everything the score depends on at one instant.
type FitnessState struct {
	CenterOfMass        r3.Vec
	InitialCenterOfMass r3.Vec
	PathLength          float64
	PelletsCollected    int
	ActivePellet        *r3.Vec
	Disqualified        model.DisqualificationReason
}

// EvaluateFitness combines the pellet, proximity, movement and displacement
// terms on top of the base score. The result is never below FloorFitness.
func EvaluateFitness(state FitnessState, w model.FitnessWeights) float64 {
	if state.Disqualified.IsDisqualified() {
		return FloorFitness
	}

	pelletTerm := finite(float64(state.PelletsCollected)) * finite(w.PelletWeight)

	proximityTerm := 0.0
	if state.ActivePellet != nil {
		dist := finite(r3.Norm(r3.Sub(state.CenterOfMass, *state.ActivePellet)))
		proximityTerm = math.Max(0, finite(w.ProximityMaxDistance)-dist) * finite(w.ProximityWeight)
	}

	movementTerm := math.Min(finite(state.PathLength)*finite(w.MovementWeight), finite(w.MovementCap))

	displacementTerm := 0.0
	if w.DistanceWeight > 0 {
		displacement := finite(r3.Norm(r3.Sub(state.CenterOfMass, state.InitialCenterOfMass)))
		displacementTerm = math.Min(displacement*finite(w.DistanceWeight), finite(w.DistanceCap))
	}

	total := finite(w.BaseFitness) + pelletTerm + proximityTerm + movementTerm + displacementTerm
	if math.IsNaN(total) || math.IsInf(total, 0) || total < FloorFitness {
		return FloorFitness
	}
	return total
}

// RecalculateFitnessOverTime rebuilds the per-frame score from stored motion.
// Frame i sees the path walked by the center of mass up to i, the pellets
// collected at or before i and the first pellet still uncollected at i.
func RecalculateFitnessOverTime(
	frames []model.SimulationFrame,
	pellets []model.PelletData,
	w model.FitnessWeights,
	disqualified model.DisqualificationReason,
) []float64 {
	out := make([]float64, len(frames))
	if len(frames) == 0 {
		return out
	}
	if disqualified.IsDisqualified() {
		for i := range out {
			out[i] = FloorFitness
		}
		return out
	}

	initial := frames[0].CenterOfMass.Vec()
	pathLength := 0.0
	for i, frame := range frames {
		com := frame.CenterOfMass.Vec()
		if i > 0 {
			pathLength += r3.Norm(r3.Sub(com, frames[i-1].CenterOfMass.Vec()))
		}

		collected := 0
		for _, p := range pellets {
			if p.CollectedAtFrame != nil && *p.CollectedAtFrame <= i {
				collected++
			}
		}

		var active *r3.Vec
		if idx := model.FirstActivePellet(pellets, i); idx >= 0 {
			pos := pellets[idx].Position.Vec()
			active = &pos
		}

		out[i] = EvaluateFitness(FitnessState{
			CenterOfMass:        com,
			InitialCenterOfMass: initial,
			PathLength:          pathLength,
			PelletsCollected:    collected,
			ActivePellet:        active,
		}, w)
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finiteVec(v r3.Vec) (r3.Vec, bool) {
	ok := true
	if math.IsNaN(v.X) || math.IsInf(v.X, 0) {
		v.X, ok = 0, false
	}
	if math.IsNaN(v.Y) || math.IsInf(v.Y, 0) {
		v.Y, ok = 0, false
	}
	if math.IsNaN(v.Z) || math.IsInf(v.Z, 0) {
		v.Z, ok = 0, false
	}
	return v, ok
}
