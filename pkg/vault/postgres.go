// pkg/vault/postgres.go
package vault

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stairway/pkg/db"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool   *pgxpool.Pool
	cipher   *Cipher
	validity time.Duration // fixed validity window stamped on every insert
	log      *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed secret store.
func NewPostgresStore(dbPool *pgxpool.Pool, cipher *Cipher, validity time.Duration, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, cipher: cipher, validity: validity, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vault_secrets (
  id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id text NOT NULL,
  owner_type text NOT NULL CHECK (owner_type IN ('user','resource')),
  owner_id text NOT NULL,
  ciphertext bytea NOT NULL,
  fingerprint text NOT NULL,
  scopes text[] NOT NULL DEFAULT '{}',
  expires_at timestamptz,
  status text NOT NULL DEFAULT 'active' CHECK (status IN ('active','revoked')),
  last_validated_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
-- one active secret per owner, enforced at the index level
CREATE UNIQUE INDEX IF NOT EXISTS vault_secrets_active_idx
  ON vault_secrets(tenant_id, owner_type, owner_id)
  WHERE status='active';
CREATE INDEX IF NOT EXISTS vault_secrets_owner_idx
  ON vault_secrets(tenant_id, owner_type, owner_id);
`)
	return err
}

// Store flips any existing active row to revoked, then inserts the new active
// row, both inside one transaction. The superseded row is never deleted.
func (s *pgStore) Store(ctx context.Context, tenant string, ownerType OwnerType, ownerID, secret string, scopes []string) (Secret, error) {
	ciphertext, err := s.cipher.Encrypt(secret)
	if err != nil {
		return Secret{}, err
	}
	fp := Fingerprint(secret)
	now := time.Now().UTC()
	expiresAt := now.Add(s.validity)
	if scopes == nil {
		scopes = []string{}
	}

	tx, err := db.BeginTenantTx(ctx, s.dbPool, tenant)
	if err != nil {
		return Secret{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE vault_secrets
		SET status='revoked', updated_at=NOW()
		WHERE tenant_id=$1 AND owner_type=$2 AND owner_id=$3 AND status='active'`,
		tenant, string(ownerType), ownerID); err != nil {
		return Secret{}, err
	}

	var id string
	if err := tx.QueryRow(ctx, `
		INSERT INTO vault_secrets (tenant_id, owner_type, owner_id, ciphertext, fingerprint, scopes, expires_at, status, last_validated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'active',$8)
		RETURNING id`,
		tenant, string(ownerType), ownerID, ciphertext, fp, scopes, expiresAt, now).Scan(&id); err != nil {
		return Secret{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Secret{}, err
	}

	s.log.Infow("secret stored", "tenant", tenant, "owner_type", ownerType, "owner_id", ownerID, "fingerprint", fp[:12])
	return Secret{
		ID: id, Tenant: tenant, OwnerType: ownerType, OwnerID: ownerID,
		Fingerprint: fp, Scopes: scopes, ExpiresAt: expiresAt, Status: "active", CreatedAt: now,
	}, nil
}

// Active decrypts and returns the single active secret for the owner.
// Expiry is stamped but deliberately not checked here (see DESIGN.md).
func (s *pgStore) Active(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) (Secret, error) {
	row := s.dbPool.QueryRow(ctx, `
		SELECT id, ciphertext, fingerprint, scopes, COALESCE(expires_at, 'epoch'::timestamptz), created_at
		FROM vault_secrets
		WHERE tenant_id=$1 AND owner_type=$2 AND owner_id=$3 AND status='active'
		ORDER BY created_at DESC
		LIMIT 1`,
		tenant, string(ownerType), ownerID)
	var (
		sec        Secret
		ciphertext []byte
	)
	if err := row.Scan(&sec.ID, &ciphertext, &sec.Fingerprint, &sec.Scopes, &sec.ExpiresAt, &sec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Secret{}, ErrNotFound
		}
		return Secret{}, err
	}
	plain, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		return Secret{}, err
	}
	sec.Tenant = tenant
	sec.OwnerType = ownerType
	sec.OwnerID = ownerID
	sec.Plaintext = plain
	sec.Status = "active"
	return sec, nil
}

func (s *pgStore) Touch(ctx context.Context, tenant string, ownerType OwnerType, ownerID string) error {
	_, err := s.dbPool.Exec(ctx, `
		UPDATE vault_secrets
		SET last_validated_at=NOW(), updated_at=NOW()
		WHERE tenant_id=$1 AND owner_type=$2 AND owner_id=$3 AND status='active'`,
		tenant, string(ownerType), ownerID)
	return err
}
