// internal/api/vault.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stairway/pkg/creative"
	"stairway/pkg/middleware"
	"stairway/pkg/vault"
)

type secretView struct {
	ID          string    `json:"id"`
	OwnerType   string    `json:"owner_type"`
	OwnerID     string    `json:"owner_id"`
	Fingerprint string    `json:"fingerprint"`
	Scopes      []string  `json:"scopes,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewOf(s vault.Secret) secretView {
	return secretView{
		ID:          s.ID,
		OwnerType:   string(s.OwnerType),
		OwnerID:     s.OwnerID,
		Fingerprint: s.Fingerprint,
		Scopes:      s.Scopes,
		ExpiresAt:   s.ExpiresAt,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
	}
}

// VaultRoutes mounts credential rotation and lookup. Reads never return the
// plaintext; the pipeline fetches it in-process. writeScopes, when non-empty,
// restricts rotation to tokens carrying at least one of them.
func VaultRoutes(r chi.Router, store vault.Store, writeScopes []string, log *zap.SugaredLogger) {
	r.Post("/v1/secrets", func(w http.ResponseWriter, req *http.Request) {
		if !middleware.HasAnyScope(req.Context(), writeScopes) {
			http.Error(w, "insufficient_scope", http.StatusForbidden)
			return
		}
		t := middleware.TenantFrom(req.Context())
		var body struct {
			OwnerType string   `json:"owner_type"`
			OwnerID   string   `json:"owner_id"`
			Secret    string   `json:"secret"`
			Scopes    []string `json:"scopes,omitempty"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		ot, err := ownerType(body.OwnerType)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if strings.TrimSpace(body.OwnerID) == "" || strings.TrimSpace(body.Secret) == "" {
			writeError(w, log, &creative.ValidationError{Msg: "owner_id and secret are required"})
			return
		}
		sec, err := store.Store(req.Context(), t.ID, ot, body.OwnerID, body.Secret, body.Scopes)
		if err != nil {
			writeError(w, log, err)
			return
		}
		log.Infow("secret rotated", "tenant", t.ID, "owner_type", ot, "owner", body.OwnerID, "fingerprint", sec.Fingerprint)
		writeJSON(w, http.StatusCreated, viewOf(sec))
	})

	r.Get("/v1/secrets/{ownerType}/{ownerID}", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ot, err := ownerType(chi.URLParam(req, "ownerType"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		sec, err := store.Active(req.Context(), t.ID, ot, chi.URLParam(req, "ownerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(sec))
	})
}

func ownerType(raw string) (vault.OwnerType, error) {
	switch vault.OwnerType(strings.ToLower(strings.TrimSpace(raw))) {
	case vault.OwnerUser:
		return vault.OwnerUser, nil
	case vault.OwnerResource:
		return vault.OwnerResource, nil
	}
	return "", &creative.ValidationError{Msg: "owner_type must be user or resource"}
}
