package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/pkg/core"
)

func newWriteCmd(g *globals) *cobra.Command {
	var (
		id      string
		content string
		title   string
		tags    []string
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a note",
		Long: `Create a note, or replace the text of an existing one with --id.
The text is taken from --content or, if absent, from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("content") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(data)
			}

			ctx := cmd.Context()
			svc, closeStore, err := g.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			var n *core.Note
			if id != "" {
				if n, err = findNote(ctx, svc, id); err != nil {
					return err
				}
				n.SetText(content)
			} else {
				n = core.NewNote(content, core.Metadata{})
			}
			if title != "" {
				n.Metadata = withField(n.Metadata, "title", title)
			}
			if len(tags) > 0 {
				n.Metadata = withField(n.Metadata, "tags", tags)
			}

			if err := svc.Save(ctx, n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Note '%s' saved.\n", n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Existing note to update")
	cmd.Flags().StringVar(&content, "content", "", "Note text")
	cmd.Flags().StringVar(&title, "title", "", "Note title")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Note tags")
	return cmd
}

func withField(m core.Metadata, key string, value any) core.Metadata {
	if m == nil {
		m = core.Metadata{}
	}
	m[key] = value
	return m
}
