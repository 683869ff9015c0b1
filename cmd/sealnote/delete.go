package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Note '%s' deleted.\n", args[0])
			return nil
		},
	}
}
