package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ikedadada/go-onehop/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "onehop-relay version %s\n", version.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", version.Commit())
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", version.Date())
		},
	}
}
