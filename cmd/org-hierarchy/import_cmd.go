package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/persistence"
	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

var (
	importRequiredColumns = []string{"kind", "id", "display_name"}
	importAllowedColumns  = []string{"kind", "id", "display_name", "parent_id", "sector_id"}
)

type importOptions struct {
	input    string
	sqlite   string
	postgres string
	migrate  bool
	apply    bool
}

type nodeWriter interface {
	InTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error
	UpsertNode(ctx context.Context, tenantID uuid.UUID, n hierarchy.Node) error
}

type importResult struct {
	Sectors   int  `json:"sectors"`
	Positions int  `json:"positions"`
	Applied   bool `json:"applied"`
}

func newImportCmd(global *globalOptions) *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seed sectors and positions from a CSV file straight into a store",
		Long: "Reads kind,id,display_name,parent_id,sector_id rows, checks that each kind forms a forest " +
			"and writes everything in one transaction. Without --apply only the checks run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(strings.TrimSpace(global.tenant))
			if err != nil || tenantID == uuid.Nil {
				return withCode(exitUsage, fmt.Errorf("--tenant is required for import"))
			}
			if (opts.sqlite == "") == (opts.postgres == "") {
				return withCode(exitUsage, fmt.Errorf("exactly one of --sqlite or --postgres is required"))
			}

			f, err := os.Open(opts.input)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer f.Close()
			sectors, positions, err := readImportFile(f)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("%s: %w", opts.input, err))
			}
			ordered, err := planImport(sectors, positions)
			if err != nil {
				return withCode(exitRejected, err)
			}

			res := importResult{Sectors: len(sectors), Positions: len(positions)}
			if opts.apply {
				if err := applyImport(cmd.Context(), opts, tenantID, ordered); err != nil {
					var rej *hierarchy.RejectionError
					if errors.As(err, &rej) {
						return withCode(exitRejected, err)
					}
					return withCode(exitAPI, err)
				}
				res.Applied = true
			}
			return writeJSONLine(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "CSV file (required)")
	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.postgres, "postgres", "", "Postgres connection string")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply the Postgres schema before importing")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the store (default is a dry run)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readImportFile(r io.Reader) (sectors, positions []hierarchy.Node, err error) {
	cr := newCSVReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}
	index, err := requireHeader(header, importRequiredColumns, importAllowedColumns)
	if err != nil {
		return nil, nil, err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		n, err := parseImportRow(rec, index)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if n.Kind == hierarchy.KindSector {
			sectors = append(sectors, n)
		} else {
			positions = append(positions, n)
		}
	}
	return sectors, positions, nil
}

func parseImportRow(rec []string, index map[string]int) (hierarchy.Node, error) {
	kind, err := hierarchy.ParseKind(field(rec, index, "kind"))
	if err != nil {
		return hierarchy.Node{}, err
	}
	id, err := uuid.Parse(field(rec, index, "id"))
	if err != nil {
		return hierarchy.Node{}, fmt.Errorf("invalid id: %w", err)
	}
	n := hierarchy.Node{ID: id, Kind: kind, DisplayName: field(rec, index, "display_name")}
	if n.DisplayName == "" {
		return hierarchy.Node{}, fmt.Errorf("display_name is empty")
	}
	if v := field(rec, index, "parent_id"); v != "" {
		p, err := uuid.Parse(v)
		if err != nil {
			return hierarchy.Node{}, fmt.Errorf("invalid parent_id: %w", err)
		}
		n.ParentID = &p
	}
	sector := field(rec, index, "sector_id")
	switch {
	case kind.Grouped() && sector == "":
		return hierarchy.Node{}, fmt.Errorf("position %s has no sector_id", id)
	case !kind.Grouped() && sector != "":
		return hierarchy.Node{}, fmt.Errorf("sector %s must not carry sector_id", id)
	case kind.Grouped():
		g, err := uuid.Parse(sector)
		if err != nil {
			return hierarchy.Node{}, fmt.Errorf("invalid sector_id: %w", err)
		}
		n.GroupKey = g
	}
	return n, nil
}

// planImport checks the rows of each kind and returns them parents first,
// sectors before positions.
func planImport(sectors, positions []hierarchy.Node) ([]hierarchy.Node, error) {
	out := make([]hierarchy.Node, 0, len(sectors)+len(positions))
	for _, nodes := range [][]hierarchy.Node{sectors, positions} {
		if len(nodes) == 0 {
			continue
		}
		kind := nodes[0].Kind
		seen := make(map[uuid.UUID]struct{}, len(nodes))
		for _, n := range nodes {
			if _, dup := seen[n.ID]; dup {
				return nil, fmt.Errorf("%s %s listed twice", kind, n.ID)
			}
			seen[n.ID] = struct{}{}
			if n.ParentID != nil && *n.ParentID == n.ID {
				return nil, &hierarchy.RejectionError{NodeID: n.ID, Result: hierarchy.RejectedSelfParent}
			}
		}

		f := hierarchy.Build(kind, nodes)
		if cycle := f.FindCycle(); cycle != nil {
			return nil, &hierarchy.RejectionError{NodeID: cycle[0], Result: hierarchy.RejectedCycle}
		}
		for _, n := range nodes {
			if n.ParentID == nil || !kind.Grouped() {
				continue
			}
			if g, ok := f.GroupOf(*n.ParentID); ok && g != n.GroupKey {
				return nil, &hierarchy.RejectionError{NodeID: n.ID, Result: hierarchy.RejectedCrossGroup}
			}
		}

		stack := make([]hierarchy.Node, 0, len(nodes))
		roots := f.Roots()
		for i := len(roots) - 1; i >= 0; i-- {
			stack = append(stack, roots[i])
		}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out = append(out, n)
			children := f.ChildrenOf(n.ID)
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
	return out, nil
}

func applyImport(ctx context.Context, opts importOptions, tenantID uuid.UUID, nodes []hierarchy.Node) error {
	var store nodeWriter
	if opts.sqlite != "" {
		repo, err := persistence.OpenSQLite(ctx, opts.sqlite)
		if err != nil {
			return err
		}
		defer repo.Close()
		store = repo
	} else {
		pool, err := pgxpool.New(ctx, opts.postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if opts.migrate {
			if err := persistence.MigratePostgres(ctx, pool); err != nil {
				return err
			}
		}
		ctx = composables.WithPool(ctx, pool)
		store = persistence.NewPgHierarchyRepository()
	}

	return store.InTx(ctx, tenantID, func(txCtx context.Context) error {
		for _, n := range nodes {
			if err := store.UpsertNode(txCtx, tenantID, n); err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
		}
		return nil
	})
}
