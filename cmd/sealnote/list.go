package main

import (
	"encoding/json"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/pkg/core"
)

func newListCmd(g *globals) *cobra.Command {
	var (
		asJSON bool
		match  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes (metadata only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if match != "" && !doublestar.ValidatePattern(match) {
				return fmt.Errorf("invalid pattern %q", match)
			}

			ctx := cmd.Context()
			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			notes, err := svc.GetNotes(ctx)
			if err != nil {
				return err
			}

			// Filter on id or title
			filtered := make([]*core.Note, 0, len(notes))
			for _, n := range notes {
				if match != "" {
					title, _ := n.Metadata["title"].(string)
					idOK, _ := doublestar.Match(match, n.ID)
					titleOK, _ := doublestar.Match(match, title)
					if !idOK && !titleOK {
						continue
					}
				}
				filtered = append(filtered, n)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(filtered)
			}

			for _, n := range filtered {
				title := ""
				if t, ok := n.Metadata["title"].(string); ok {
					title = fmt.Sprintf(" - %s", t)
				}
				fmt.Fprintf(out, "%s%s\n", n.ID, title)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&match, "match", "", "Only notes whose id or title match this glob")
	return cmd
}
