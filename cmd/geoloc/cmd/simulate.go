package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-drift/geolocation/pkg/simulator"
)

func newSimulateCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay scenarios against a simulated device",
		Long: `Replay one or more scenario files against the geolocation orchestrator
on a simulated device. Each delivered result is printed as a JSON line.

Usage:
  geoloc simulate walk.yaml             # stream results
  geoloc simulate --summary walk.yaml   # also print a per-scenario summary`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				sc, err := simulator.Load(path)
				if err != nil {
					return err
				}

				var writeErr error
				report, err := simulator.Run(cmd.Context(), sc, simulator.Options{
					Logger:               logger.With("scenario", sc.Name),
					WatchInterval:        c.WatchInterval,
					FirstResolutionToken: c.ResolutionTokenBase,
					OnEvent: func(ev simulator.Event) {
						if writeErr == nil {
							writeErr = enc.Encode(ev)
						}
					},
				})
				if err != nil {
					return fmt.Errorf("simulate %s: %w", path, err)
				}
				if writeErr != nil {
					return fmt.Errorf("write events: %w", writeErr)
				}
				if summary {
					if err := enc.Encode(struct {
						Summary *simulator.Report `json:"summary"`
					}{report}); err != nil {
						return fmt.Errorf("write summary: %w", err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print a summary after each scenario")
	return cmd
}
