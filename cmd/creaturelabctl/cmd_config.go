package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "write <path>",
		Short: "Write the effective configuration (defaults, file and flags) as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.WriteYAML(args[0]); err != nil {
				return err
			}
			if !jsonOutput(cmd) {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			}
			return nil
		},
	})
	return cmd
}
