package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultLinearDamping is the fraction of velocity removed per simulated second.
const DefaultLinearDamping = 0.1

type Config struct {
	Gravity        float64
	GroundFriction float64
	LinearDamping  float64
}

// Body is a sphere resting on or above the ground plane y = 0.
type Body struct {
	ID       string
	Position r3.Vec
	Velocity r3.Vec
	Radius   float64
	Mass     float64
	Friction float64

	force r3.Vec
}

// World is an isolated rigid-body context. A world is built for one creature,
// stepped to completion and then dropped; nothing in it is shared.
type World struct {
	cfg    Config
	bodies []*Body
	byID   map[string]*Body
}

func NewWorld(cfg Config) *World {
	if cfg.LinearDamping < 0 {
		cfg.LinearDamping = 0
	}
	return &World{
		cfg:  cfg,
		byID: make(map[string]*Body),
	}
}

func (w *World) AddBody(id string, position r3.Vec, radius, mass, friction float64) (*Body, error) {
	if _, exists := w.byID[id]; exists {
		return nil, fmt.Errorf("duplicate body id %s", id)
	}
	if mass <= 0 {
		return nil, fmt.Errorf("body %s mass must be > 0", id)
	}
	body := &Body{
		ID:       id,
		Position: position,
		Radius:   radius,
		Mass:     mass,
		Friction: friction,
	}
	w.bodies = append(w.bodies, body)
	w.byID[id] = body
	return body, nil
}

func (w *World) Body(id string) (*Body, bool) {
	body, ok := w.byID[id]
	return body, ok
}

// Bodies returns bodies in insertion order.
func (w *World) Bodies() []*Body {
	return w.bodies
}

func (b *Body) ApplyForce(f r3.Vec) {
	b.force = r3.Add(b.force, f)
}

// Step advances every body by dt using semi-implicit Euler, then resolves
// ground contact with Coulomb friction.
func (w *World) Step(dt float64) {
	damping := 1 - w.cfg.LinearDamping*dt
	if damping < 0 {
		damping = 0
	}
	gravity := r3.Vec{Y: w.cfg.Gravity}

	for _, b := range w.bodies {
		accel := r3.Add(r3.Scale(1/b.Mass, b.force), gravity)
		b.Velocity = r3.Scale(damping, r3.Add(b.Velocity, r3.Scale(dt, accel)))
		b.Position = r3.Add(b.Position, r3.Scale(dt, b.Velocity))
		b.force = r3.Vec{}

		w.resolveGround(b)
	}
}

// resolveGround leaves non-finite bodies alone so callers can detect them.
func (w *World) resolveGround(b *Body) {
	if !finite(b.Position) || b.Position.Y >= b.Radius {
		return
	}
	b.Position.Y = b.Radius
	if b.Velocity.Y >= 0 {
		return
	}

	normalSpeed := -b.Velocity.Y
	b.Velocity.Y = 0

	mu := w.cfg.GroundFriction * b.Friction
	if mu <= 0 {
		return
	}
	tangential := math.Hypot(b.Velocity.X, b.Velocity.Z)
	if tangential == 0 {
		return
	}
	drop := math.Min(tangential, mu*normalSpeed)
	scale := (tangential - drop) / tangential
	b.Velocity.X *= scale
	b.Velocity.Z *= scale
}

// CenterOfMass is the mass-weighted mean body position.
func (w *World) CenterOfMass() r3.Vec {
	var sum r3.Vec
	total := 0.0
	for _, b := range w.bodies {
		sum = r3.Add(sum, r3.Scale(b.Mass, b.Position))
		total += b.Mass
	}
	if total == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/total, sum)
}

func finite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
