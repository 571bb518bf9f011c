// internal/organic/media.go
package organic

import (
	"errors"
	"strings"
)

// ErrNoPublicBase is returned when a non-public media URL arrives and no
// PUBLIC_BASE_URL is configured to resolve it against.
var ErrNoPublicBase = errors.New("organic: PUBLIC_BASE_URL is not set and a non-public media URL was provided")

// Normalizer rewrites caller-supplied media URLs into URLs the platform can
// fetch. Object-store URLs are already public and pass through untouched; the
// tunnel rewrite and relative-path join exist for local development setups.
type Normalizer struct {
	PublicBase string
	TunnelBase string
}

func NewNormalizer(publicBase, tunnelBase string) Normalizer {
	return Normalizer{
		PublicBase: strings.TrimRight(strings.TrimSpace(publicBase), "/"),
		TunnelBase: strings.TrimRight(strings.TrimSpace(tunnelBase), "/"),
	}
}

func (n Normalizer) Normalize(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return u, nil
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		if n.TunnelBase != "" && n.PublicBase != "" && strings.HasPrefix(u, n.TunnelBase) {
			return n.PublicBase + u[len(n.TunnelBase):], nil
		}
		return u, nil
	}
	if n.PublicBase == "" {
		return "", ErrNoPublicBase
	}
	if strings.HasPrefix(u, "/") {
		return n.PublicBase + u, nil
	}
	return n.PublicBase + "/" + u, nil
}
