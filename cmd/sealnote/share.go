package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newShareCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "share <id> <login>...",
		Short: "Let other logins decrypt a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := findNote(ctx, svc, args[0])
			if err != nil {
				return err
			}
			if err := svc.ExtendSharing(ctx, n, args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Note '%s' shared with %s.\n", n.ID, strings.Join(args[1:], ", "))
			return nil
		},
	}
}
