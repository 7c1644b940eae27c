package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"creaturelab/internal/stats"
	"creaturelab/pkg/creaturelab"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export run summary and history CSVs to a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")

			req := creaturelab.ExportRequest{Latest: latest, OutDir: outDir}
			if len(args) == 1 {
				req.RunID = args[0]
			}

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"runId": exported.RunID, "directory": exported.Directory})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().Bool("latest", false, "Export the most recent run")
	cmd.Flags().String("out", "", "Output directory (default: exports)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Print a run's fitness history as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.WriteFitnessHistory(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <kind>",
		Short:     "Print the JSON schema of a persisted record",
		Long:      "Print the JSON schema of a persisted record. Kinds: creature, generation, run.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: stats.SchemaKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := stats.RecordSchema(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), schema)
		},
	}
}
