package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/montana2ab/swarmclient/pkg/identity"
)

func newKeygenCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new account identity seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := make([]byte, identity.SeedSize)
			if _, err := rand.Read(seed); err != nil {
				return fmt.Errorf("keygen: generate seed: %w", err)
			}
			id, err := identity.FromSeed(seed)
			if err != nil {
				return fmt.Errorf("keygen: derive identity: %w", err)
			}

			seedHex := hex.EncodeToString(seed)
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(seedHex+"\n"), 0o600); err != nil {
					return fmt.Errorf("keygen: write seed file: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "session id: %s\n", id.SessionID().String())
			if outPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "seed written to %s\n", outPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "seed: %s\n", seedHex)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "write the seed (hex) to this file instead of stdout")
	return cmd
}
