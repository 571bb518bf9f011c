// internal/pipeline/accounts.go
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const accountPrefix = "act_"

// NormalizeAccountID maps a raw account id onto its canonical act_-prefixed
// form. Upstream responses have been seen with the prefix already applied,
// sometimes more than once; strip every repetition before adding it back.
func NormalizeAccountID(raw string) string {
	id := strings.TrimSpace(raw)
	for strings.HasPrefix(id, accountPrefix) {
		id = id[len(accountPrefix):]
	}
	if id == "" {
		return ""
	}
	return accountPrefix + id
}

const accountCacheTTL = 60 * time.Second

func accountCacheKey(tenantID string) string { return "stairway:accounts:" + tenantID }

// cachedAccounts returns the tenant's discovered accounts from redis, or nil
// on miss / no redis configured.
func (s *Service) cachedAccounts(ctx context.Context, tenantID string) []AccountRef {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, accountCacheKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Debugw("account cache read", "err", err)
		}
		return nil
	}
	var out []AccountRef
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func (s *Service) cacheAccounts(ctx context.Context, tenantID string, accounts []AccountRef) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(accounts)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, accountCacheKey(tenantID), raw, accountCacheTTL).Err(); err != nil {
		s.log.Debugw("account cache write", "err", err)
	}
}
