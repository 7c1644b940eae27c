package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creaturelab/internal/model"
	"creaturelab/pkg/creaturelab"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <genome.json>",
		Short: "Simulate a single genome without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			genomes, err := readGenomes(args[0])
			if err != nil {
				return err
			}
			if len(genomes) != 1 {
				return fmt.Errorf("simulate expects exactly one genome, %s holds %d", args[0], len(genomes))
			}

			scoreOnly, _ := cmd.Flags().GetBool("score-only")

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if scoreOnly {
				score, err := client.Score(cmd.Context(), genomes[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"scape":   score.Scape,
						"fitness": score.Fitness,
						"trace":   score.Trace,
					})
				}
				printScore(cmd, genomes[0].ID, score)
				return nil
			}

			result, err := client.Simulate(cmd.Context(), genomes[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), resultSummary(result))
			}
			printResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().Bool("score-only", false, "Print only the fitness and trace summary")
	return cmd
}

func printScore(cmd *cobra.Command, genomeID string, score creaturelab.ScoreSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s in %s: fitness %s\n", genomeID, score.Scape, humanize.FormatFloat("#,###.##", score.Fitness))
	keys := make([]string, 0, len(score.Trace))
	for key := range score.Trace {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %-18s %v\n", key, score.Trace[key])
	}
}

type resultView struct {
	GenomeID              string  `json:"genomeId"`
	FinalFitness          float64 `json:"finalFitness"`
	PelletsCollected      int     `json:"pelletsCollected"`
	DistanceTraveled      float64 `json:"distanceTraveled"`
	NetDisplacement       float64 `json:"netDisplacement"`
	ClosestPelletDistance float64 `json:"closestPelletDistance"`
	Frames                int     `json:"frames"`
	Disqualified          string  `json:"disqualified"`
}

func resultSummary(r model.CreatureSimulationResult) resultView {
	return resultView{
		GenomeID:              r.Genome.ID,
		FinalFitness:          r.FinalFitness,
		PelletsCollected:      r.PelletsCollected,
		DistanceTraveled:      r.DistanceTraveled,
		NetDisplacement:       r.NetDisplacement,
		ClosestPelletDistance: r.ClosestPelletDistance,
		Frames:                len(r.Frames),
		Disqualified:          r.Disqualified.String(),
	}
}

func printResult(cmd *cobra.Command, r model.CreatureSimulationResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "genome:        %s\n", r.Genome.ID)
	fmt.Fprintf(out, "fitness:       %s\n", humanize.FormatFloat("#,###.##", r.FinalFitness))
	fmt.Fprintf(out, "pellets:       %d\n", r.PelletsCollected)
	fmt.Fprintf(out, "distance:      %.3f\n", r.DistanceTraveled)
	fmt.Fprintf(out, "displacement:  %.3f\n", r.NetDisplacement)
	fmt.Fprintf(out, "frames:        %s\n", humanize.Comma(int64(len(r.Frames))))
	fmt.Fprintf(out, "disqualified:  %s\n", r.Disqualified)
}

// readGenomes accepts either a single genome object or an array of genomes.
func readGenomes(path string) ([]model.CreatureGenome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genomes: %w", err)
	}
	var many []model.CreatureGenome
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one model.CreatureGenome
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parsing genomes in %s: %w", path, err)
	}
	return []model.CreatureGenome{one}, nil
}
