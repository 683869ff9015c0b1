package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sealnote",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sealnote version %s\n", sealnote.Version)
		},
	}
}
