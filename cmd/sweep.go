package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scraphaul/dispatch/app"
	"github.com/scraphaul/dispatch/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single reconciliation pass over expired offers and exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "service close: %v\n", err)
		}
	}()
	return svc.Sweep.Pass(cmd.Context())
}
