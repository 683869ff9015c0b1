package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/pkg/inbox"
)

func newInboxCmd(g *globals) *cobra.Command {
	var (
		pattern  string
		remove   bool
		existing bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inbox <dir>",
		Short: "Watch a directory and import every .dpr file dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			w, err := inbox.New(svc, inbox.Config{
				Dir:          args[0],
				Pattern:      pattern,
				Debounce:     debounce,
				Remove:       remove,
				ScanExisting: existing,
				Logger:       slog.Default(),
				OnResult: func(r inbox.Result) {
					if r.Err != nil {
						fmt.Fprintf(out, "%s: %v\n", r.Path, r.Err)
						return
					}
					fmt.Fprintf(out, "%s -> %s\n", r.Path, r.Note.ID)
				},
			})
			if err != nil {
				return err
			}

			if err := w.Start(ctx); err != nil {
				return err
			}
			slog.Info("watching inbox", "dir", args[0], "login", svc.Login())

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.Stop(stopCtx); err != nil {
				return err
			}
			stats := w.Stats()
			slog.Info("inbox stopped", "imported", stats.Imported, "failed", stats.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", inbox.DefaultPattern, "Glob of files to import, relative to dir")
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete files once imported")
	cmd.Flags().BoolVar(&existing, "existing", false, "Import matching files already present")
	cmd.Flags().DurationVar(&debounce, "debounce", 100*time.Millisecond, "Quiet period before a file is imported")
	return cmd
}
