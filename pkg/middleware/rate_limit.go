package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

const rateLimitPrefix = "org-hierarchy:ratelimit"

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	// KeyFunc picks the bucket; the client ip when nil.
	KeyFunc func(r *http.Request) string
}

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewRedisStore shares buckets between instances through redisURL, a
// redis:// URL or a bare host:port.
func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: rateLimitPrefix,
	})
}

func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.RequestsPerPeriod <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	period := cfg.Period
	if period <= 0 {
		period = time.Second
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string { return getRealIP(r, "X-Real-IP") }
	}

	instance := limiter.New(store, limiter.Rate{Period: period, Limit: int64(cfg.RequestsPerPeriod)})
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(keyFunc),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeMiddlewareError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			composables.UseLogger(r.Context()).WithError(err).Error("rate limiter failed")
			writeMiddlewareError(w, r, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
		}),
	)
	return mw.Handler
}
