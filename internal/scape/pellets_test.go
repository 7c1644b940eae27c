package scape

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestPelletPositionRampsOutward(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	center := r3.Vec{X: 2, Y: 5, Z: -1}
	const arena = 20.0

	cases := []struct {
		index      int
		radius     float64
		wantHeight float64
	}{
		{index: 0, radius: 1, wantHeight: 0.3},
		{index: 1, radius: 1 + (8-1)*0.2, wantHeight: 0.7},
		{index: 5, radius: 8, wantHeight: 2.3},
		{index: 9, radius: 8, wantHeight: 3.9},
	}
	for _, tc := range cases {
		for trial := 0; trial < 50; trial++ {
			pos := PelletPosition(rng, tc.index, arena, center)
			planar := math.Hypot(pos.X-center.X, pos.Z-center.Z)
			if planar < tc.radius*0.8-1e-9 || planar > tc.radius*1.2+1e-9 {
				t.Fatalf("pellet %d radius %f outside jitter band around %f", tc.index, planar, tc.radius)
			}
			if math.Abs(pos.Y-tc.wantHeight) > 1e-9 {
				t.Fatalf("pellet %d height: got=%f want=%f", tc.index, pos.Y, tc.wantHeight)
			}
		}
	}
}

func TestPelletSpawnerLifecycle(t *testing.T) {
	spawner := NewPelletSpawner(rand.New(rand.NewSource(2)), 20, 2)
	if spawner.Active() != -1 {
		t.Fatalf("expected no active pellet before spawning")
	}

	first, ok := spawner.Spawn(r3.Vec{}, 0)
	if !ok || first.ID != "pellet-0" {
		t.Fatalf("unexpected first pellet: ok=%t %+v", ok, first)
	}
	if spawner.Active() != 0 {
		t.Fatalf("expected pellet 0 active, got %d", spawner.Active())
	}

	spawner.Collect(0, 3)
	if spawner.Active() != -1 {
		t.Fatalf("expected no active pellet after collection, got %d", spawner.Active())
	}
	second, ok := spawner.Spawn(r3.Vec{X: 1}, 3)
	if !ok || second.SpawnedAtFrame != 3 {
		t.Fatalf("unexpected second pellet: ok=%t %+v", ok, second)
	}
	if spawner.Active() != 1 {
		t.Fatalf("expected pellet 1 active, got %d", spawner.Active())
	}
	if _, ok := spawner.Spawn(r3.Vec{}, 4); ok {
		t.Fatal("expected spawn to stop at the cap")
	}

	pellets := spawner.Pellets()
	pellets[0].ID = "mutated"
	if spawner.Pellet(0).ID != "pellet-0" {
		t.Fatal("Pellets must return a copy")
	}
	if got := spawner.Pellet(0).CollectedAtFrame; got == nil || *got != 3 {
		t.Fatalf("unexpected collection frame: %v", got)
	}
}

func TestCollectRadius(t *testing.T) {
	if got := CollectRadius(1); math.Abs(got-0.85) > 1e-12 {
		t.Fatalf("collect radius: got=%f want=0.85", got)
	}
}
