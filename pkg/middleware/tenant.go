package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

// WithTenantHeader resolves the tenant from header. Requests without the
// header keep going untenanted and are rejected further down where a tenant
// is actually needed.
func WithTenantHeader(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil || tenantID == uuid.Nil {
				composables.UseLogger(r.Context()).WithField("tenant", raw).Warn("invalid tenant header")
				writeMiddlewareError(w, r, http.StatusBadRequest, "INVALID_TENANT", header+" must be a uuid")
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenantID(r.Context(), tenantID)))
		})
	}
}
