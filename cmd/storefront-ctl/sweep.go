package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Cancel expired pending orders and restore their stock",
	Long: `Runs one order expiry sweep, the same one the API runs on its timer.

The sweep takes the shared lock first; when another instance holds it the
command fails without touching any order.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.Scheduler.Trigger(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "canceled %d expired order(s)\n", n)
	return nil
}
