package tenants

import (
	"context"
)

type Provider interface {
	// Resolve tenant from its id (the X-Tenant-ID request header).
	ResolveTenantByID(ctx context.Context, id string) (Tenant, error)
	// Optional: resolve from slug
	ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error)
}
