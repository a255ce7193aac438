package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/org-hierarchy/pkg/application"
	"github.com/iota-uz/org-hierarchy/pkg/configuration"
	"github.com/iota-uz/org-hierarchy/pkg/httpapi"
	"github.com/iota-uz/org-hierarchy/pkg/middleware"
	"github.com/iota-uz/org-hierarchy/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	// Pool is nil when the store is SQLite.
	Pool *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts), // opens the root span for each request

		middleware.TracedMiddleware("database"),
		middleware.ProvidePool(options.Pool),

		middleware.TracedMiddleware("tenant"),
		middleware.WithTenantHeader(conf.TenantHeader),
	}

	if origins := conf.CORS.Origins(); len(origins) > 0 {
		middlewares = append(middlewares,
			middleware.TracedMiddleware("cors"),
			middleware.Cors(origins...),
		)
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		var err error

		switch conf.RateLimit.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		realIPHeader := conf.RealIPHeader
		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
				KeyFunc: func(r *http.Request) string {
					if v := r.Header.Get(realIPHeader); v != "" {
						return v
					}
					return r.RemoteAddr
				},
			}),
		)
	}

	app.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(app, NotFound(), MethodNotAllowed()), nil
}

func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found", map[string]string{"path": r.URL.Path})
	})
}

func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", map[string]string{"path": r.URL.Path})
	})
}
