package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org"
	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/persistence"
	"github.com/iota-uz/org-hierarchy/pkg/application"
	"github.com/iota-uz/org-hierarchy/pkg/configuration"
	"github.com/iota-uz/org-hierarchy/pkg/httpapi"
)

func testConfiguration() *configuration.Configuration {
	return &configuration.Configuration{
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		TenantHeader:    "X-Tenant-ID",
		RateLimit: configuration.RateLimitOptions{
			Enabled:   true,
			GlobalRPS: 1000,
			Storage:   "memory",
		},
		CORS: configuration.CORSOptions{AllowedOrigins: "http://localhost:3000"},
	}
}

func TestDefault_ServesTenantScopedAPI(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	repo, err := persistence.OpenSQLite(ctx, filepath.Join(t.TempDir(), "org.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	tenant := uuid.New()
	root := uuid.New()
	require.NoError(t, repo.UpsertNode(ctx, tenant, hierarchy.Node{ID: root, Kind: hierarchy.KindSector, DisplayName: "Root"}))

	app := application.New(&application.ApplicationOptions{Logger: logger})
	require.NoError(t, application.LoadModules(app, org.NewModule(&org.ModuleOptions{Repository: repo})))

	srv, err := Default(&DefaultOptions{
		Logger:        logger,
		Configuration: testConfiguration(),
		Application:   app,
	})
	require.NoError(t, err)
	h := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/org/api/hierarchy/sectors", nil)
	req.Header.Set("X-Tenant-ID", tenant.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), root.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/org/api/hierarchy/sectors", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "NOT_FOUND", env.Code)
}
