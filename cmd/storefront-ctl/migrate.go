package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Applies the store schema to the configured database and, when a saga log
path is set, to the saga log. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	// Opening the store and the saga log applies their schemas.
	app, err := openApp(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer app.Close()
	if err := app.Store.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "store schema applied (%s)\n", app.Config.Database.Driver)
	if app.SagaReader != nil {
		fmt.Fprintf(out, "saga log schema applied (%s)\n", app.Config.SagaLogPath)
	}
	return nil
}
