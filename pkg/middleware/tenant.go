// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"net/http"

	"stairway/pkg/tenants"
)

type ctxTenantKey struct{}

// WithTenant resolves the calling tenant from the X-Tenant-ID header and
// stores it in the request context. Health and metrics pass through without
// tenant context.
func WithTenant(prov tenants.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			id := r.Header.Get("X-Tenant-ID")
			if id == "" {
				http.Error(w, "missing tenant", http.StatusBadRequest)
				return
			}
			t, err := prov.ResolveTenantByID(r.Context(), id)
			if err != nil {
				// a slug is accepted where an id is not known
				t, err = prov.ResolveTenantBySlug(r.Context(), id)
			}
			if err != nil {
				http.Error(w, "unknown tenant", http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), ctxTenantKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TenantFrom(ctx context.Context) tenants.Tenant {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Tenant)
	}
	return tenants.Tenant{}
}
