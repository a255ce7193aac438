package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ORG_HIERARCHY_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "org")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("ORG_HIERARCHY_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("ORG_HIERARCHY_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ORG_HIERARCHY_TEST_ENV_LOAD"))
}

func validConfiguration() *Configuration {
	return &Configuration{
		Database:  DatabaseOptions{User: "org"},
		Store:     StoreOptions{Driver: "Postgres"},
		Hierarchy: HierarchyOptions{CacheBackend: "memory", MaxBatchSize: 10},
		RateLimit: RateLimitOptions{Storage: "memory", GlobalRPS: 10},
		RedisURL:  "localhost:6379",
	}
}

func TestConfiguration_Validate(t *testing.T) {
	t.Run("normalises driver and rls mode", func(t *testing.T) {
		c := validConfiguration()
		require.NoError(t, c.Validate())
		require.Equal(t, StorePostgres, c.Store.Driver)
		require.Equal(t, "disabled", c.RLSEnforce)
	})

	t.Run("unknown store driver", func(t *testing.T) {
		c := validConfiguration()
		c.Store.Driver = "mysql"
		require.ErrorContains(t, c.Validate(), "ORG_STORE_DRIVER")
	})

	t.Run("sqlite needs a path", func(t *testing.T) {
		c := validConfiguration()
		c.Store.Driver = StoreSQLite
		require.Error(t, c.Validate())
		c.Store.SQLitePath = filepath.Join(t.TempDir(), "org.db")
		require.NoError(t, c.Validate())
	})

	t.Run("batch limit must be positive", func(t *testing.T) {
		c := validConfiguration()
		c.Hierarchy.MaxBatchSize = 0
		require.ErrorContains(t, c.Validate(), "ORG_HIERARCHY_MAX_BATCH")
	})

	t.Run("redis cache needs redis url", func(t *testing.T) {
		c := validConfiguration()
		c.Hierarchy.CacheBackend = CacheRedis
		c.RedisURL = ""
		require.Error(t, c.Validate())
	})

	t.Run("rls enforce rejects superuser", func(t *testing.T) {
		c := validConfiguration()
		c.RLSEnforce = "enforce"
		c.Database.User = "postgres"
		require.Error(t, c.Validate())
	})

	t.Run("default tenant must be a uuid", func(t *testing.T) {
		c := validConfiguration()
		c.Hierarchy.DefaultTenant = "acme"
		require.Error(t, c.Validate())
	})
}

func TestHierarchyOptions_DefaultTenantID(t *testing.T) {
	h := HierarchyOptions{DefaultTenant: " 00000000-0000-0000-0000-000000000001 "}
	require.Equal(t, "00000000-0000-0000-0000-000000000001", h.DefaultTenantID().String())

	h.DefaultTenant = ""
	require.Equal(t, "00000000-0000-0000-0000-000000000000", h.DefaultTenantID().String())
}

func TestCORSOptions_Origins(t *testing.T) {
	c := CORSOptions{AllowedOrigins: "https://a.example, ,https://b.example"}
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.Origins())
	require.Empty(t, (&CORSOptions{}).Origins())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
