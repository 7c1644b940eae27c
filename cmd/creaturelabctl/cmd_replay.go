package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"creaturelab/pkg/creaturelab"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Load a stored generation and recompute its fitness curves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generation, _ := cmd.Flags().GetInt("generation")
			full, _ := cmd.Flags().GetBool("frames")

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			results, err := client.Replay(cmd.Context(), creaturelab.ReplayRequest{RunID: args[0], Generation: generation})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				if full {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				views := make([]resultView, 0, len(results))
				for _, r := range results {
					views = append(views, resultSummary(r))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			out := cmd.OutOrStdout()
			for i, r := range results {
				peak := 0.0
				for _, f := range r.FitnessOverTime {
					peak = max(peak, f)
				}
				fmt.Fprintf(out, "%3d  %-20s  fitness %9.3f  peak %9.3f  pellets %d  frames %d  %s\n",
					i, r.Genome.ID, r.FinalFitness, peak, r.PelletsCollected, len(r.Frames), r.Disqualified)
			}
			return nil
		},
	}
	cmd.Flags().Int("generation", 0, "Generation to replay")
	cmd.Flags().Bool("frames", false, "Include full frame data in JSON output")
	return cmd
}
