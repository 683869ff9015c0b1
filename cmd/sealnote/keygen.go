package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/internal/config"
	"github.com/aretw0/sealnote/pkg/signer"
)

func newKeygenCmd() *cobra.Command {
	var requester string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh application signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := signer.Generate(requester)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s=%s\n", config.EnvRequester, s.Requester())
			fmt.Fprintf(out, "%s=%s\n", config.EnvSigningKey, s.Token())
			fmt.Fprintf(out, "# public key: %s\n", base64.StdEncoding.EncodeToString(s.PublicKey()))
			return nil
		},
	}

	cmd.Flags().StringVar(&requester, "requester", signer.DefaultRequester, "Requester id the key signs for")
	return cmd
}
