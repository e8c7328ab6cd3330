package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and BuildTime are overridden at build time via
// -ldflags "-X main.Version=... -X main.BuildTime=...", following the
// teacher's own binary's versioning convention.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the swarmclientd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "swarmclientd %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}
