// pkg/vault/memory.go
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRow struct {
	Secret
	sealed []byte
}

// MemoryStore is the dev/test Store. It keeps the same rotation semantics as the
// PostgreSQL store: superseded rows flip to revoked and stay around, and rows
// hold ciphertext, not plaintext.
type MemoryStore struct {
	mu       sync.Mutex
	rows     []*memRow
	cipher   *Cipher
	validity time.Duration
}

func NewMemoryStore(cipher *Cipher, validity time.Duration) *MemoryStore {
	if cipher == nil {
		cipher = NewCipher("")
	}
	return &MemoryStore{cipher: cipher, validity: validity}
}

func (m *MemoryStore) Store(ctx context.Context, tenant string, ownerType OwnerType, ownerID, secret string, scopes []string) (Secret, error) {
	if scopes == nil {
		scopes = []string{}
	}
	sealed, err := m.cipher.Encrypt(secret)
	if err != nil {
		return Secret{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Tenant == tenant && r.OwnerType == ownerType && r.OwnerID == ownerID && r.Status == "active" {
			r.Status = "revoked"
		}
	}
	now := time.Now().UTC()
	row := &memRow{
		Secret: Secret{
			ID:          uuid.NewString(),
			Tenant:      tenant,
			OwnerType:   ownerType,
			OwnerID:     ownerID,
			Fingerprint: Fingerprint(secret),
			Scopes:      scopes,
			ExpiresAt:   now.Add(m.validity),
			Status:      "active",
			CreatedAt:   now,
		},
		sealed: sealed,
	}
	m.rows = append(m.rows, row)
	return row.Secret, nil // writes do not return plaintext, matching pg
}

func (m *MemoryStore) Active(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) (Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		r := m.rows[i]
		if r.Tenant == tenant && r.OwnerType == ownerType && r.OwnerID == ownerID && r.Status == "active" {
			plain, err := m.cipher.Decrypt(r.sealed)
			if err != nil {
				return Secret{}, err
			}
			out := r.Secret
			out.Plaintext = plain
			return out, nil
		}
	}
	return Secret{}, ErrNotFound
}

func (m *MemoryStore) Touch(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) error {
	return nil
}

// Rows exposes a snapshot of all rows including revoked ones, for tests that
// assert rotation never deletes. Plaintext is never included.
func (m *MemoryStore) Rows() []Secret {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Secret, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Secret)
	}
	return out
}
