// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"go.uber.org/zap"
)

type memProvider struct {
	log  *zap.SugaredLogger
	byID map[string]Tenant
}

func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p := &memProvider{log: log, byID: map[string]Tenant{}}
	seed := os.Getenv("TENANT_SEED_JSON")
	if seed != "" {
		var entries []struct {
			ID               string `json:"id"`
			Slug             string `json:"slug"`
			Name             string `json:"name"`
			MetaUserID       string `json:"meta_user_id"`
			PageID           string `json:"page_id"`
			InstagramActorID string `json:"instagram_actor_id"`
			DefaultLink      string `json:"default_link"`
		}
		_ = json.Unmarshal([]byte(seed), &entries)
		for _, e := range entries {
			p.byID[e.ID] = Tenant{
				ID: e.ID, Slug: e.Slug, Name: e.Name,
				MetaUserID: e.MetaUserID, PageID: e.PageID,
				InstagramActorID: e.InstagramActorID, DefaultLink: e.DefaultLink,
			}
		}
	} else {
		// sensible localhost default so local bring-up works without a seed
		dev := Tenant{
			ID: "00000000-0000-0000-0000-000000000001", Slug: "dev",
			MetaUserID:       os.Getenv("META_USER_ID"),
			PageID:           os.Getenv("META_PAGE_ID"),
			InstagramActorID: os.Getenv("INSTAGRAM_ACTOR_ID"),
		}
		p.byID[dev.ID] = dev
	}
	return p
}

func (m *memProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, errors.New("tenant not found")
}

func (m *memProvider) ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	for _, t := range m.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Tenant{}, errors.New("tenant not found")
}
