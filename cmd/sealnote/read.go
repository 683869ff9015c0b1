package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/pkg/core"
)

type noteView struct {
	ID                  string        `json:"id"`
	ProtectedResourceID string        `json:"protectedResourceId"`
	Metadata            core.Metadata `json:"metadata,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	Content             string        `json:"content"`
}

func newReadCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Decrypt and print a note",
		Args:  cobra.ExactArgs(1),
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
			if err := svc.GetContent(ctx, n); err != nil {
				return err
			}
			text, _ := n.Text()

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(noteView{
					ID:                  n.ID,
					ProtectedResourceID: n.ProtectedResourceID,
					Metadata:            n.Metadata,
					CreatedAt:           n.CreatedAt,
					Content:             text,
				})
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
