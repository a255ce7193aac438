package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

// ProvidePool makes pool reachable through composables.UsePool. A nil pool
// turns the middleware into a pass-through, which is what the SQLite store
// runs with.
func ProvidePool(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if pool == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(composables.WithPool(r.Context(), pool)))
		})
	}
}
