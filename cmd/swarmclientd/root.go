package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagEnvPath    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swarmclientd",
		Short: "A decentralized, end-to-end encrypted messaging client core",
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&flagEnvPath, "env", ".env", "path to an optional .env overlay")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeygenCmd())
	return root
}
