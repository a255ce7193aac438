package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/apiclient"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/configuration"
)

type globalOptions struct {
	baseURL      string
	tenant       string
	tenantHeader string
}

func newRootCmd() *cobra.Command {
	var opts globalOptions
	cmd := &cobra.Command{
		Use:           "org-hierarchy",
		Short:         "Inspect and rearrange sector and position hierarchies through the API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "API origin (defaults to ORIGIN)")
	cmd.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "Tenant UUID")
	cmd.PersistentFlags().StringVar(&opts.tenantHeader, "tenant-header", "X-Tenant-ID", "Header carrying the tenant")

	cmd.AddCommand(newTreeCmd(&opts))
	cmd.AddCommand(newCheckCmd(&opts))
	cmd.AddCommand(newMoveCmd(&opts))
	cmd.AddCommand(newImportCmd(&opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

func (o *globalOptions) client() (*apiclient.Client, error) {
	baseURL := strings.TrimSpace(o.baseURL)
	if baseURL == "" {
		baseURL = configuration.Use().Origin
	}
	var tenantID uuid.UUID
	if v := strings.TrimSpace(o.tenant); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
		}
		tenantID = id
	}
	c, err := apiclient.New(apiclient.Options{
		BaseURL:      baseURL,
		TenantID:     tenantID,
		TenantHeader: o.tenantHeader,
	})
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("invalid --base-url: %w", err))
	}
	return c, nil
}

// kindFlags are shared by every subcommand.
type kindFlags struct {
	kind   string
	sector string
}

func (f *kindFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "kind", "sector", "Hierarchy kind: sector or position")
	cmd.Flags().StringVar(&f.sector, "sector", "", "Limit positions to one sector")
}

func (f *kindFlags) parse() (hierarchy.Kind, services.Scope, error) {
	kind, err := hierarchy.ParseKind(f.kind)
	if err != nil {
		return 0, services.Scope{}, withCode(exitUsage, err)
	}
	var scope services.Scope
	if v := strings.TrimSpace(f.sector); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return 0, services.Scope{}, withCode(exitUsage, fmt.Errorf("invalid --sector: %w", err))
		}
		scope.SectorID = &id
	}
	return kind, scope, nil
}

func parseNodeID(flag, v string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid %s: %q", flag, v))
	}
	return id, nil
}

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// apiFailure classifies errors coming back from the client.
func apiFailure(err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if _, ok := apiErr.Rejection(); ok {
			return withCode(exitRejected, err)
		}
	}
	return withCode(exitAPI, err)
}
