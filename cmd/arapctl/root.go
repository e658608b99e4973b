package main

import (
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/arap/internal/app"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arapctl",
		Short:         "Operator commands for the AR/AP reconciliation service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newInstallmentsCmd(), newJobsCmd())
	return root
}

func loadConfig() (*app.Config, error) {
	return app.LoadConfig()
}
