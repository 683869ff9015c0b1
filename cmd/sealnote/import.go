package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import exported .dpr files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			var errs []error
			for _, path := range args {
				n, err := svc.ImportFile(ctx, os.DirFS(filepath.Dir(path)), filepath.Base(path))
				if err != nil {
					errs = append(errs, fmt.Errorf("import %s: %w", path, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", path, n.ID)
			}
			return errors.Join(errs...)
		},
	}
}
