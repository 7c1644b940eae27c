package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creaturelab/internal/evo"
	"creaturelab/internal/progress"
	"creaturelab/pkg/creaturelab"
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <genomes.json>",
		Short: "Simulate a population and store it as a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run")
			generation, _ := cmd.Flags().GetInt("generation")
			progressAddr, _ := cmd.Flags().GetString("progress-addr")

			genomes, err := readGenomes(args[0])
			if err != nil {
				return err
			}

			client, _, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			var (
				hub    *progress.Hub
				report evo.ProgressFunc
			)
			if progressAddr != "" {
				hub = progress.NewHub(nil)
				stop, err := serveProgress(progressAddr, hub, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer stop()
			} else if !jsonOutput(cmd) {
				report = func(completed, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rsimulated %d/%d", completed, total)
					if completed == total {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				}
			}

			summary, err := client.Evaluate(cmd.Context(), creaturelab.EvaluateRequest{
				RunID:      runID,
				Generation: generation,
				Genomes:    genomes,
				Progress:   report,
				Reporter:   reporterFor(hub),
			})
			if err != nil {
				return err
			}
			if hub != nil && !jsonOutput(cmd) {
				fmt.Fprintf(cmd.ErrOrStderr(), "progress streamed to %d subscriber(s)\n", hub.Subscribers())
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"runId":        summary.RunID,
					"generation":   summary.Generation,
					"fitness":      summary.Fitness,
					"bestGenomeId": summary.BestGenomeID,
					"disqualified": summary.Disqualified,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s generation %d: %s creatures, %d disqualified\n",
				summary.RunID, summary.Generation, humanize.Comma(int64(len(summary.Results))), summary.Disqualified)
			fmt.Fprintf(out, "fitness best=%.3f avg=%.3f worst=%.3f (best genome %s)\n",
				summary.Fitness.Best, summary.Fitness.Average, summary.Fitness.Worst, summary.BestGenomeID)
			return nil
		},
	}
	cmd.Flags().String("run", "", "Continue this run instead of starting a new one")
	cmd.Flags().Int("generation", -1, "Generation index to store under (default: next)")
	cmd.Flags().String("progress-addr", "", "Serve websocket progress events on this address, e.g. :8089")
	return cmd
}

// reporterFor publishes to hub under the resolved run and generation.
func reporterFor(hub *progress.Hub) func(runID string, generation int) evo.ProgressFunc {
	if hub == nil {
		return nil
	}
	return hub.Reporter
}

// serveProgress exposes the hub at /progress until stop is called.
func serveProgress(addr string, hub *progress.Hub, errOut io.Writer) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for progress: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/progress", hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(errOut, "progress server:", err)
		}
	}()
	return func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
