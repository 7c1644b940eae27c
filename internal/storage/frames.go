package storage

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"creaturelab/internal/model"
	"creaturelab/internal/scape"
)

// Round3 rounds to the three decimals kept on disk.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// NodeOrder is the column order used for a genome's compacted frames.
func NodeOrder(genome model.CreatureGenome) []string {
	order := make([]string, len(genome.Nodes))
	for i, node := range genome.Nodes {
		order[i] = node.ID
	}
	return order
}

// CompactFrames flattens each frame to [time, x1, y1, z1, x2, ...] in nodeOrder.
// A node missing from a frame is written at the origin.
func CompactFrames(frames []model.SimulationFrame, nodeOrder []string) [][]float64 {
	rows := make([][]float64, len(frames))
	for i, frame := range frames {
		row := make([]float64, 0, 1+3*len(nodeOrder))
		row = append(row, Round3(frame.Time))
		for _, id := range nodeOrder {
			pos := frame.NodePositions[id]
			row = append(row, Round3(pos.X), Round3(pos.Y), Round3(pos.Z))
		}
		rows[i] = row
	}
	return rows
}

// ExpandFrames is the inverse of CompactFrames. The center of mass is the plain
// mean of node positions; stored frames carry no masses.
func ExpandFrames(rows [][]float64, nodeOrder []string, pellets []model.PelletData) ([]model.SimulationFrame, error) {
	want := 1 + 3*len(nodeOrder)
	frames := make([]model.SimulationFrame, len(rows))
	for i, row := range rows {
		if len(row) != want {
			return nil, fmt.Errorf("frame %d has %d values, want %d", i, len(row), want)
		}
		positions := make(map[string]model.Vector3, len(nodeOrder))
		var sum r3.Vec
		for n, id := range nodeOrder {
			off := 1 + 3*n
			pos := model.Vector3{X: row[off], Y: row[off+1], Z: row[off+2]}
			positions[id] = pos
			sum = r3.Add(sum, pos.Vec())
		}
		var com r3.Vec
		if len(nodeOrder) > 0 {
			com = r3.Scale(1/float64(len(nodeOrder)), sum)
		}
		frames[i] = model.SimulationFrame{
			Time:              row[0],
			NodePositions:     positions,
			CenterOfMass:      model.FromVec(com),
			ActivePelletIndex: model.FirstActivePellet(pellets, i),
		}
	}
	return frames, nil
}

// CompactResult produces the persisted form. Per-frame fitness is dropped and
// rebuilt by ExpandResult.
func CompactResult(result model.CreatureSimulationResult) model.CompactCreatureResult {
	pellets := make([]model.CompactPellet, len(result.Pellets))
	for i, p := range result.Pellets {
		var collected *int
		if p.CollectedAtFrame != nil {
			frame := *p.CollectedAtFrame
			collected = &frame
		}
		pellets[i] = model.CompactPellet{
			Position: model.Vector3{
				X: Round3(p.Position.X),
				Y: Round3(p.Position.Y),
				Z: Round3(p.Position.Z),
			},
			CollectedAtFrame: collected,
		}
	}
	return model.CompactCreatureResult{
		Genome:       result.Genome,
		Fitness:      Round3(result.FinalFitness),
		Pellets:      result.PelletsCollected,
		Disqualified: result.Disqualified,
		Frames:       CompactFrames(result.Frames, NodeOrder(result.Genome)),
		PelletData:   pellets,
	}
}

// ExpandResult rebuilds a full result from its persisted form, recomputing the
// motion statistics and the per-frame fitness under weights.
func ExpandResult(compact model.CompactCreatureResult, weights model.FitnessWeights) (model.CreatureSimulationResult, error) {
	pellets := make([]model.PelletData, len(compact.PelletData))
	spawned := 0
	for i, p := range compact.PelletData {
		var collected *int
		if p.CollectedAtFrame != nil {
			frame := *p.CollectedAtFrame
			collected = &frame
		}
		pellets[i] = model.PelletData{
			ID:               fmt.Sprintf("pellet-%d", i),
			Position:         p.Position,
			CollectedAtFrame: collected,
			SpawnedAtFrame:   spawned,
		}
		if collected != nil {
			spawned = *collected
		}
	}

	frames, err := ExpandFrames(compact.Frames, NodeOrder(compact.Genome), pellets)
	if err != nil {
		return model.CreatureSimulationResult{}, fmt.Errorf("expand genome %s: %w", compact.Genome.ID, err)
	}

	pathLength := 0.0
	netDisplacement := 0.0
	closest := math.Inf(1)
	for i, frame := range frames {
		com := frame.CenterOfMass.Vec()
		if i > 0 {
			pathLength += r3.Norm(r3.Sub(com, frames[i-1].CenterOfMass.Vec()))
		}
		if frame.ActivePelletIndex >= 0 {
			target := pellets[frame.ActivePelletIndex].Position.Vec()
			closest = math.Min(closest, r3.Norm(r3.Sub(com, target)))
		}
	}
	if len(frames) > 0 {
		netDisplacement = r3.Norm(r3.Sub(frames[len(frames)-1].CenterOfMass.Vec(), frames[0].CenterOfMass.Vec()))
	}
	if math.IsInf(closest, 1) {
		closest = 0
	}

	return model.CreatureSimulationResult{
		Genome:                compact.Genome,
		Frames:                frames,
		FinalFitness:          compact.Fitness,
		PelletsCollected:      compact.Pellets,
		DistanceTraveled:      pathLength,
		NetDisplacement:       netDisplacement,
		ClosestPelletDistance: closest,
		Pellets:               pellets,
		FitnessOverTime:       scape.RecalculateFitnessOverTime(frames, pellets, weights, compact.Disqualified),
		Disqualified:          compact.Disqualified,
	}, nil
}
