package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

type checkResult struct {
	Kind       string     `json:"kind"`
	ChildID    uuid.UUID  `json:"child_id"`
	ParentID   *uuid.UUID `json:"parent_id"`
	Result     string     `json:"result"`
	MessageKey string     `json:"message_key,omitempty"`
}

func newCheckCmd(global *globalOptions) *cobra.Command {
	var (
		flags  kindFlags
		child  string
		parent string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask whether a node may be placed under a parent, without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, scope, err := flags.parse()
			if err != nil {
				return err
			}
			childID, err := parseNodeID("--child", child)
			if err != nil {
				return err
			}
			var parentID *uuid.UUID
			if parent != "" {
				id, err := parseNodeID("--parent", parent)
				if err != nil {
					return err
				}
				parentID = &id
			}
			client, err := global.client()
			if err != nil {
				return err
			}
			nodes, err := client.ListNodes(cmd.Context(), kind, scope)
			if err != nil {
				return apiFailure(err)
			}

			result := hierarchy.Validate(hierarchy.Build(kind, nodes), childID, parentID)
			if err := writeJSONLine(cmd.OutOrStdout(), checkResult{
				Kind:       kind.String(),
				ChildID:    childID,
				ParentID:   parentID,
				Result:     result.String(),
				MessageKey: result.MessageKey(),
			}); err != nil {
				return err
			}
			if !result.OK() {
				return withCode(exitRejected, fmt.Errorf("rejected: %w", result.Err()))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&child, "child", "", "Node to move (required)")
	cmd.Flags().StringVar(&parent, "parent", "", "New parent; omit to check a detach")
	_ = cmd.MarkFlagRequired("child")
	return cmd
}
