package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/mappers"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/viewmodels"
)

func newTreeCmd(global *globalOptions) *cobra.Command {
	var (
		flags  kindFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a hierarchy as an indented tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, scope, err := flags.parse()
			if err != nil {
				return err
			}
			client, err := global.client()
			if err != nil {
				return err
			}
			nodes, err := client.ListNodes(cmd.Context(), kind, scope)
			if err != nil {
				return apiFailure(err)
			}
			tree := mappers.HierarchyToTree(hierarchy.Build(kind, nodes), nil)
			if asJSON {
				return writeJSONLine(cmd.OutOrStdout(), tree)
			}
			return printTree(cmd.OutOrStdout(), tree)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the flattened tree as JSON")
	return cmd
}

func printTree(w io.Writer, tree *viewmodels.HierarchyTree) error {
	for _, n := range tree.Nodes {
		if _, err := fmt.Fprintf(w, "%s%s  %s  children=%d members=%d\n",
			strings.Repeat("  ", n.Depth), n.Name, n.ID, n.ChildCount, n.MemberCount); err != nil {
			return err
		}
	}
	return nil
}
