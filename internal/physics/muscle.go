package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Muscle is a damped spring whose rest length oscillates over time.
type Muscle struct {
	A, B           *Body
	BaseRestLength float64
	Stiffness      float64
	Damping        float64
	Frequency      float64
	Amplitude      float64
	Phase          float64
}

// RestLength is the target spring length at simulated time t.
func (m Muscle) RestLength(t float64) float64 {
	return m.BaseRestLength * (1 - math.Sin(2*math.Pi*m.Frequency*t+m.Phase)*m.Amplitude)
}

type MuscleSpec struct {
	NodeA, NodeB   string
	BaseRestLength float64
	Stiffness      float64
	Damping        float64
	Frequency      float64
	Amplitude      float64
	Phase          float64
}

type MuscleSystem struct {
	muscles []Muscle
}

func NewMuscleSystem(world *World, specs []MuscleSpec) (*MuscleSystem, error) {
	muscles := make([]Muscle, 0, len(specs))
	for i, spec := range specs {
		a, ok := world.Body(spec.NodeA)
		if !ok {
			return nil, fmt.Errorf("muscle %d references unknown node %s", i, spec.NodeA)
		}
		b, ok := world.Body(spec.NodeB)
		if !ok {
			return nil, fmt.Errorf("muscle %d references unknown node %s", i, spec.NodeB)
		}
		muscles = append(muscles, Muscle{
			A:              a,
			B:              b,
			BaseRestLength: spec.BaseRestLength,
			Stiffness:      spec.Stiffness,
			Damping:        spec.Damping,
			Frequency:      spec.Frequency,
			Amplitude:      spec.Amplitude,
			Phase:          spec.Phase,
		})
	}
	return &MuscleSystem{muscles: muscles}, nil
}

func (s *MuscleSystem) Muscles() []Muscle {
	return s.muscles
}

// Apply accumulates every muscle's spring force on its bodies for time t.
func (s *MuscleSystem) Apply(t float64) {
	for _, m := range s.muscles {
		applySpring(m, m.RestLength(t))
	}
}

func applySpring(m Muscle, rest float64) {
	delta := r3.Sub(m.B.Position, m.A.Position)
	length := r3.Norm(delta)
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return
	}
	dir := r3.Scale(1/length, delta)
	relVel := r3.Sub(m.B.Velocity, m.A.Velocity)

	magnitude := -m.Stiffness*(length-rest) - m.Damping*r3.Dot(relVel, dir)
	force := r3.Scale(magnitude, dir)
	m.B.ApplyForce(force)
	m.A.ApplyForce(r3.Scale(-1, force))
}
