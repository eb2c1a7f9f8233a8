package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Worklane background worker: import/sync jobs and schema migrations",
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newTenantCmd())
	return cmd
}
