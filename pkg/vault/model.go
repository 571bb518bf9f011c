// pkg/vault/model.go
package vault

import (
	"context"
	"errors"
	"time"
)

// OwnerType scopes a secret to the principal it acts for.
type OwnerType string

const (
	// OwnerUser: a user-level principal (the advertiser's platform user).
	OwnerUser OwnerType = "user"
	// OwnerResource: a resource-level principal (a page / publishing surface).
	OwnerResource OwnerType = "resource"
)

// Secret is one credential row. The fingerprint is a content hash kept for
// audit and dedup only; it is never a lookup key. At most one row per
// (tenant, owner_type, owner_id) is active at any time.
type Secret struct {
	ID          string
	Tenant      string
	OwnerType   OwnerType
	OwnerID     string
	Plaintext   string // decrypted; populated on reads only
	Fingerprint string
	Scopes      []string
	ExpiresAt   time.Time
	Status      string // active | revoked
	CreatedAt   time.Time
}

// ErrNotFound: no active secret exists for the requested owner.
var ErrNotFound = errors.New("vault: no active secret")

// Store rotates and serves per-tenant secrets. Rotation supersedes the prior
// active row, never updating it in place, and the revoke + insert pair
// commits in a single transaction, so no reader observes the superseded
// ciphertext as active.
type Store interface {
	Store(ctx context.Context, tenant string, ownerType OwnerType, ownerID, secret string, scopes []string) (Secret, error)
	Active(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) (Secret, error)
	// Touch records a successful remote use (last_validated_at).
	Touch(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) error
}

// ActiveForResource resolves the credential for a resource-scoped operation.
// The fallback order is the contract: a resource-level secret is preferred,
// and only when none is active does the owning user's secret serve instead.
func ActiveForResource(ctx context.Context, s Store, tenant, resourceID, userID string) (Secret, error) {
	sec, err := s.Active(ctx, tenant, OwnerResource, resourceID)
	if err == nil {
		return sec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Secret{}, err
	}
	return s.Active(ctx, tenant, OwnerUser, userID)
}
