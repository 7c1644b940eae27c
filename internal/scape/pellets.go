package scape

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"creaturelab/internal/model"
)

const (
	pelletMinRadius     = 1.0
	pelletArenaFraction = 0.4
	pelletRampCount     = 5
	pelletJitter        = 0.2
	pelletBaseHeight    = 0.3
	pelletHeightStep    = 0.4
	pelletCollectMargin = 0.35
)

// PelletSpawner hands out one target at a time, each further away and higher
// than the last, up to a fixed cap.
type PelletSpawner struct {
	rng       *rand.Rand
	arenaSize float64
	max       int
	pellets   []model.PelletData
}

func NewPelletSpawner(rng *rand.Rand, arenaSize float64, max int) *PelletSpawner {
	return &PelletSpawner{rng: rng, arenaSize: arenaSize, max: max}
}

// Spawn registers the next pellet around center. It reports false once the cap is reached.
func (s *PelletSpawner) Spawn(center r3.Vec, frame int) (model.PelletData, bool) {
	if len(s.pellets) >= s.max {
		return model.PelletData{}, false
	}
	index := len(s.pellets)
	pellet := model.PelletData{
		ID:             fmt.Sprintf("pellet-%d", index),
		Position:       model.FromVec(PelletPosition(s.rng, index, s.arenaSize, center)),
		SpawnedAtFrame: frame,
	}
	s.pellets = append(s.pellets, pellet)
	return pellet, true
}

// Active returns the index of the uncollected pellet, or -1.
func (s *PelletSpawner) Active() int {
	return model.FirstActivePellet(s.pellets, math.MaxInt)
}

func (s *PelletSpawner) Pellet(idx int) model.PelletData {
	return s.pellets[idx]
}

func (s *PelletSpawner) Collect(idx, frame int) {
	collected := frame
	s.pellets[idx].CollectedAtFrame = &collected
}

func (s *PelletSpawner) Pellets() []model.PelletData {
	out := make([]model.PelletData, len(s.pellets))
	copy(out, s.pellets)
	return out
}

// PelletPosition places pellet index i on a jittered ring around the
// ground-projected center. Radius ramps from 1 to 40% of the arena over the
// first five pellets and height climbs with every pellet after the first.
func PelletPosition(rng *rand.Rand, index int, arenaSize float64, center r3.Vec) r3.Vec {
	ramp := math.Min(float64(index)/pelletRampCount, 1)
	radius := lerp(pelletMinRadius, pelletArenaFraction*arenaSize, ramp)
	radius *= 1 + (rng.Float64()*2-1)*pelletJitter

	height := pelletBaseHeight
	if index > 0 {
		height = pelletBaseHeight + float64(index)*pelletHeightStep
	}

	angle := rng.Float64() * 2 * math.Pi
	return r3.Vec{
		X: center.X + math.Cos(angle)*radius,
		Y: height,
		Z: center.Z + math.Sin(angle)*radius,
	}
}

// CollectRadius is how close a node center must get to a pellet to collect it.
func CollectRadius(nodeSize float64) float64 {
	return nodeSize*0.5 + pelletCollectMargin
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
