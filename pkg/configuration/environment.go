package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/pkg/logging"
)

const Production = "production"

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheOff    = "off"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of
// them exist there, the nearest directory holding a go.mod is tried instead.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"org_hierarchy"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type StoreOptions struct {
	Driver     string `env:"ORG_STORE_DRIVER" envDefault:"postgres"` // postgres or sqlite
	SQLitePath string `env:"ORG_SQLITE_PATH" envDefault:"./data/org-hierarchy.db"`
	// Applies the embedded schema on startup. SQLite always does.
	AutoMigrate bool `env:"ORG_AUTO_MIGRATE" envDefault:"false"`
}

func (s *StoreOptions) Validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case StorePostgres:
	case StoreSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("ORG_SQLITE_PATH is required when ORG_STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("invalid ORG_STORE_DRIVER=%q (expected postgres|sqlite)", s.Driver)
	}
	return nil
}

type HierarchyOptions struct {
	CacheBackend  string        `env:"ORG_HIERARCHY_CACHE" envDefault:"memory"` // memory, redis or off
	CacheTTL      time.Duration `env:"ORG_HIERARCHY_CACHE_TTL" envDefault:"5m"`
	MaxBatchSize  int           `env:"ORG_HIERARCHY_MAX_BATCH" envDefault:"500"`
	DefaultTenant string        `env:"ORG_DEFAULT_TENANT_ID" envDefault:""`

	// Broadcast committed batches over REDIS_URL so peers drop cached forests.
	Relay bool `env:"ORG_HIERARCHY_RELAY" envDefault:"false"`
}

func (h *HierarchyOptions) Validate() error {
	h.CacheBackend = strings.ToLower(strings.TrimSpace(h.CacheBackend))
	switch h.CacheBackend {
	case CacheMemory, CacheRedis, CacheOff:
	default:
		return fmt.Errorf("invalid ORG_HIERARCHY_CACHE=%q (expected memory|redis|off)", h.CacheBackend)
	}
	if h.MaxBatchSize <= 0 {
		return fmt.Errorf("ORG_HIERARCHY_MAX_BATCH must be positive, got %d", h.MaxBatchSize)
	}
	if v := strings.TrimSpace(h.DefaultTenant); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("invalid ORG_DEFAULT_TENANT_ID=%q: %w", v, err)
		}
	}
	return nil
}

// DefaultTenantID returns uuid.Nil when no default tenant is configured.
func (h *HierarchyOptions) DefaultTenantID() uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(h.DefaultTenant))
	if err != nil {
		return uuid.Nil
	}
	return id
}

type LokiOptions struct {
	AppName string `env:"LOKI_APP_NAME" envDefault:"org-hierarchy"`
	LogPath string `env:"LOG_PATH" envDefault:"./logs/app.log"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"org-hierarchy"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type CORSOptions struct {
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`
}

// Origins splits the comma separated allow list. An empty list disables CORS.
func (c *CORSOptions) Origins() []string {
	var out []string
	for _, part := range strings.Split(c.AllowedOrigins, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type Configuration struct {
	Database      DatabaseOptions
	Store         StoreOptions
	Hierarchy     HierarchyOptions
	Loki          LokiOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	CORS          CORSOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Domain           string `env:"DOMAIN" envDefault:"localhost"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// Looked up on every request; a random uuidv4 is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Falls back to request.RemoteAddr when absent.
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	TenantHeader string `env:"TENANT_HEADER" envDefault:"X-Tenant-ID"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Scheme() string {
	if c.GoAppEnvironment == Production {
		return "https"
	}
	return "http"
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Loki.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	if os.Getenv("ORIGIN") == "" {
		if c.GoAppEnvironment == "development" {
			c.Origin = fmt.Sprintf("%s://%s:%d", c.Scheme(), c.Domain, c.ServerPort)
		} else {
			c.Origin = fmt.Sprintf("%s://%s", c.Scheme(), c.Domain)
		}
	}
	return nil
}

// Validate normalises and checks every option group.
func (c *Configuration) Validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Hierarchy.Validate(); err != nil {
		return err
	}
	if c.Hierarchy.CacheBackend == CacheRedis && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when ORG_HIERARCHY_CACHE=redis")
	}
	if c.Hierarchy.Relay && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when ORG_HIERARCHY_RELAY=true")
	}
	return c.validateRLS()
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}
	if mode == "enforce" && c.Store.Driver == StorePostgres && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}
	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
