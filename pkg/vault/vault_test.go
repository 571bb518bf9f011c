package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestRotationSupersedes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewCipher("test-key"), 58*day)

	_, err := store.Store(ctx, "t1", OwnerUser, "u1", "secret-one", nil)
	require.NoError(t, err)
	_, err = store.Store(ctx, "t1", OwnerUser, "u1", "secret-two", nil)
	require.NoError(t, err)

	sec, err := store.Active(ctx, "t1", OwnerUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, "secret-two", sec.Plaintext)
	assert.Equal(t, Fingerprint("secret-two"), sec.Fingerprint)

	// The superseded row is revoked, never deleted.
	rows := store.Rows()
	require.Len(t, rows, 2)
	var active, revoked int
	for _, r := range rows {
		assert.Empty(t, r.Plaintext, "rows keep ciphertext only")
		switch r.Status {
		case "active":
			active++
		case "revoked":
			revoked++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, revoked)
}

func TestRotationScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 58*day)

	_, err := store.Store(ctx, "t1", OwnerUser, "u1", "user-secret", nil)
	require.NoError(t, err)
	_, err = store.Store(ctx, "t1", OwnerResource, "page1", "page-secret", nil)
	require.NoError(t, err)
	_, err = store.Store(ctx, "t2", OwnerUser, "u1", "other-tenant", nil)
	require.NoError(t, err)

	sec, err := store.Active(ctx, "t1", OwnerUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, "user-secret", sec.Plaintext, "rotation in other scopes must not revoke this row")
}

func TestStoreNeverReturnsPlaintextOnWrite(t *testing.T) {
	store := NewMemoryStore(nil, day)
	sec, err := store.Store(context.Background(), "t1", OwnerUser, "u1", "s3cret", []string{"ads_read"})
	require.NoError(t, err)
	assert.Empty(t, sec.Plaintext)
	assert.NotEmpty(t, sec.Fingerprint)
}

func TestExpiryStamp(t *testing.T) {
	store := NewMemoryStore(nil, 58*day)
	before := time.Now().UTC()
	sec, err := store.Store(context.Background(), "t1", OwnerUser, "u1", "s", nil)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(58*day), sec.ExpiresAt, time.Minute)
}

func TestActiveForResourceFallback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, day)

	_, err := store.Store(ctx, "t1", OwnerUser, "u1", "user-secret", nil)
	require.NoError(t, err)

	// No resource secret stored: the owning user's serves.
	sec, err := ActiveForResource(ctx, store, "t1", "page1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "user-secret", sec.Plaintext)

	// A resource secret takes precedence once present.
	_, err = store.Store(ctx, "t1", OwnerResource, "page1", "page-secret", nil)
	require.NoError(t, err)
	sec, err = ActiveForResource(ctx, store, "t1", "page1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "page-secret", sec.Plaintext)
}

func TestActiveForResourceNotFound(t *testing.T) {
	store := NewMemoryStore(nil, day)
	_, err := ActiveForResource(context.Background(), store, "t1", "page1", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCipherRoundtrip(t *testing.T) {
	c := NewCipher("some key material")
	sealed, err := c.Encrypt("the-access-token")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "the-access-token")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "the-access-token", plain)
}

func TestCipherEmptyKeyPassthrough(t *testing.T) {
	c := NewCipher("")
	sealed, err := c.Encrypt("plain")
	require.NoError(t, err)
	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "plain", plain)
}

func TestCipherRejectsTamperedCiphertext(t *testing.T) {
	c := NewCipher("key")
	sealed, err := c.Encrypt("value")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF
	_, err = c.Decrypt(sealed)
	require.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	assert.Len(t, Fingerprint("abc"), 64)
}
