package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BeginTenantTx opens a transaction with app.tenant_id set for row-level
// security. The vault's rotate-and-insert pair runs inside one of these so a
// tenant can never observe or supersede another tenant's credentials.
// Rollback on error paths, Commit on success.
func BeginTenantTx(ctx context.Context, pool *pgxpool.Pool, tenantID string) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}
