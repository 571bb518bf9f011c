// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  slug text UNIQUE,
  name text,
  meta_user_id text,
  page_id text,
  instagram_actor_id text,
  default_link text,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
-- Backfill / ensure new columns exist (for upgrades)
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS instagram_actor_id text;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS default_link text;
`)
	return err
}

// SeedFromEnv ingests initial tenant data.
// jsonSeed format (TENANT_SEED_JSON):
// [
//
//	{
//	  "id":"...","slug":"...","name":"...","meta_user_id":"...",
//	  "page_id":"...","instagram_actor_id":"...","default_link":"..."
//	}
//
// ]
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []struct {
		ID               string `json:"id"`
		Slug             string `json:"slug"`
		Name             string `json:"name"`
		MetaUserID       string `json:"meta_user_id"`
		PageID           string `json:"page_id"`
		InstagramActorID string `json:"instagram_actor_id"`
		DefaultLink      string `json:"default_link"`
	}
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, _ = dbPool.Exec(ctx, `INSERT INTO tenants(id,slug,name,meta_user_id,page_id,instagram_actor_id,default_link)
		  VALUES ($1,$2,$3,$4,$5,$6,$7)
		  ON CONFLICT (id) DO UPDATE SET slug=EXCLUDED.slug,name=EXCLUDED.name,meta_user_id=EXCLUDED.meta_user_id,
		    page_id=EXCLUDED.page_id,instagram_actor_id=EXCLUDED.instagram_actor_id,default_link=EXCLUDED.default_link`,
			id, entry.Slug, entry.Name, entry.MetaUserID, entry.PageID, entry.InstagramActorID, entry.DefaultLink)
	}
	return nil
}

func (p *pgProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	return p.scanOne(ctx, `SELECT id,COALESCE(slug,''),COALESCE(name,''),COALESCE(meta_user_id,''),COALESCE(page_id,''),COALESCE(instagram_actor_id,''),COALESCE(default_link,'') FROM tenants WHERE id=$1`, id)
}

func (p *pgProvider) ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	return p.scanOne(ctx, `SELECT id,COALESCE(slug,''),COALESCE(name,''),COALESCE(meta_user_id,''),COALESCE(page_id,''),COALESCE(instagram_actor_id,''),COALESCE(default_link,'') FROM tenants WHERE slug=$1`, slug)
}

func (p *pgProvider) scanOne(ctx context.Context, q, arg string) (Tenant, error) {
	row := p.dbPool.QueryRow(ctx, q, arg)
	var t Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.MetaUserID, &t.PageID, &t.InstagramActorID, &t.DefaultLink); err != nil {
		return Tenant{}, errors.New("tenant not found")
	}
	return t, nil
}
