package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the neftie CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neftie",
		Short: "neftie - social posting GraphQL API",
		Long: `neftie serves the user, post and comment GraphQL API.
Configuration is read from environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReconcileCmd())

	return cmd
}
