package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-hierarchy/modules/org/presentation/canvas"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

type moveSpec struct {
	child  uuid.UUID
	parent *uuid.UUID
}

// parseMove reads CHILD=PARENT. An empty PARENT detaches the child.
func parseMove(arg string) (moveSpec, error) {
	childPart, parentPart, ok := strings.Cut(arg, "=")
	if !ok {
		return moveSpec{}, withCode(exitUsage, fmt.Errorf("invalid move %q: expected CHILD=PARENT", arg))
	}
	child, err := parseNodeID("child", childPart)
	if err != nil {
		return moveSpec{}, err
	}
	spec := moveSpec{child: child}
	if strings.TrimSpace(parentPart) != "" {
		parent, err := parseNodeID("parent", parentPart)
		if err != nil {
			return moveSpec{}, err
		}
		spec.parent = &parent
	}
	return spec, nil
}

type moveResult struct {
	Kind      string                     `json:"kind"`
	DryRun    bool                       `json:"dry_run"`
	Committed bool                       `json:"committed"`
	Updates   []services.ParentUpdateDTO `json:"updates"`
}

func newMoveCmd(global *globalOptions) *cobra.Command {
	var (
		flags  kindFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "move CHILD=PARENT [CHILD=PARENT...]",
		Short: "Buffer parent changes, validate each in order and commit them as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, scope, err := flags.parse()
			if err != nil {
				return err
			}
			moves := make([]moveSpec, 0, len(args))
			for _, arg := range args {
				m, err := parseMove(arg)
				if err != nil {
					return err
				}
				moves = append(moves, m)
			}
			client, err := global.client()
			if err != nil {
				return err
			}

			ctrl := canvas.NewController(client, canvas.Options{Kind: kind, Scope: scope})
			if err := ctrl.Load(cmd.Context()); err != nil {
				return apiFailure(err)
			}
			for _, m := range moves {
				var out canvas.Outcome
				if m.parent == nil {
					out = ctrl.Detach(m.child)
				} else {
					out = ctrl.Drop(m.child, m.parent)
				}
				if !out.Result.OK() {
					return withCode(exitRejected, fmt.Errorf("move %s rejected: %w", m.child, out.Result.Err()))
				}
			}

			res := moveResult{
				Kind:    kind.String(),
				DryRun:  dryRun,
				Updates: services.NewUpdateHierarchyRequest(ctrl.PendingUpdates()).Updates,
			}
			if !dryRun && ctrl.IsDirty() {
				if err := ctrl.Commit(cmd.Context()); err != nil {
					return apiFailure(err)
				}
				res.Committed = true
			}
			return writeJSONLine(cmd.OutOrStdout(), res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and print the batch without committing")
	return cmd
}
