package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"creaturelab/internal/config"
	"creaturelab/internal/logging"
	"creaturelab/pkg/creaturelab"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "creaturelabctl",
		Short: "Simulate and manage evolving spring-mass creatures",
		Long: `creaturelabctl runs spring-and-muscle creatures through the pellet arena,
stores each evaluated generation and lets you inspect, replay, fork and
export past runs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config overlaid on the built-in defaults")
	rootCmd.PersistentFlags().String("store", "", "Store backend: memory or sqlite (overrides config)")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newSimulateCmd(),
		newEvaluateCmd(),
		newRunsCmd(),
		newShowCmd(),
		newReplayCmd(),
		newForkCmd(),
		newRenameCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newHistoryCmd(),
		newSchemaCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	storeKind, _ := cmd.Flags().GetString("store")
	dbPath, _ := cmd.Flags().GetString("db-path")
	logLevel, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeKind != "" {
		cfg.Store.Kind = storeKind
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// openClient builds a client from the effective configuration.
func openClient(cmd *cobra.Command) (*creaturelab.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	client, err := creaturelab.New(creaturelab.Options{
		StoreKind:  cfg.Store.Kind,
		DBPath:     cfg.Store.Path,
		Simulation: &cfg.Simulation,
		Logger:     logging.NewLogger(cfg.Log.Level, cmd.ErrOrStderr()),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, cfg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
