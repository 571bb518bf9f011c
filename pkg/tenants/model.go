package tenants

// Tenant represents a logical customer / account space. Every secret,
// campaign, and pipeline run is scoped to one tenant.
type Tenant struct {
	ID               string // uuid
	Slug             string // short name (acme)
	Name             string
	MetaUserID       string // platform user principal owning the ad accounts
	PageID           string // publishing page (resource-level principal)
	InstagramActorID string // linked business account used in creatives
	DefaultLink      string // tenant-level fallback ad link, optional
}
