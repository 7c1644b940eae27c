package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creaturelab/internal/model"
	"creaturelab/internal/stats"
	"creaturelab/pkg/creaturelab"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), creaturelab.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				summaries := make([]stats.RunSummary, 0, len(runs))
				for _, run := range runs {
					summaries = append(summaries, stats.Summarize(run))
				}
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs stored.")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-24s  %s generations  started %s%s\n",
					run.ID, displayName(run), humanize.Comma(int64(run.GenerationCount)),
					humanize.Time(run.StartTime), forkNote(run))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show run metadata and fitness history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			run, err := client.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), stats.Summarize(run))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:          %s\n", run.ID)
			fmt.Fprintf(out, "name:         %s\n", displayName(run))
			fmt.Fprintf(out, "started:      %s (%s)\n", run.StartTime.Format("2006-01-02 15:04:05"), humanize.Time(run.StartTime))
			fmt.Fprintf(out, "generations:  %d\n", run.GenerationCount)
			if run.ForkedFrom != "" {
				fmt.Fprintf(out, "forked from:  %s\n", run.ForkedFrom)
			}
			if run.BestCreature != nil {
				fmt.Fprintf(out, "best:         %s fitness %.3f at generation %d\n",
					run.BestCreature.Result.Genome.ID, run.BestCreature.Result.Fitness, run.BestCreature.Generation)
			}
			if run.LongestSurvivor != nil {
				fmt.Fprintf(out, "survivor:     %s lasted %s, gone at generation %d\n",
					run.LongestSurvivor.Result.Genome.ID, pluralGenerations(run.LongestSurvivor.Streak), run.LongestSurvivor.DiedAtGeneration)
			}
			for _, h := range run.FitnessHistory {
				fmt.Fprintf(out, "  gen %4d  best %10.3f  avg %10.3f  worst %10.3f\n", h.Generation, h.Best, h.Average, h.Worst)
			}
			return nil
		},
	}
}

func newForkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fork <run-id>",
		Short: "Copy a run up to a generation into a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetInt("at")

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			forkID, err := client.Fork(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"runId": forkID, "forkedFrom": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forked %s at generation %d into %s\n", args[0], at, forkID)
			return nil
		},
	}
	cmd.Flags().Int("at", 0, "Last generation to keep")
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <run-id> <name>",
		Short: "Rename a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Rename(cmd.Context(), args[0], args[1])
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and all of its generations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !jsonOutput(cmd) {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			}
			return nil
		},
	}
}

func displayName(run model.SavedRun) string {
	if run.Name == "" {
		return "(unnamed)"
	}
	return run.Name
}

func forkNote(run model.SavedRun) string {
	if run.ForkedFrom == "" {
		return ""
	}
	return "  fork of " + run.ForkedFrom
}

func pluralGenerations(n int) string {
	if n == 1 {
		return "1 generation"
	}
	return strconv.Itoa(n) + " generations"
}
