package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stairway/internal/pipeline"
	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/middleware"
	"stairway/pkg/poll"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

func problemFor(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop().Sugar(), err)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&creative.ValidationError{Msg: "bad"}, http.StatusUnprocessableEntity},
		{creative.ErrMissingThumbnail, http.StatusUnprocessableEntity},
		{vault.ErrNotFound, http.StatusNotFound},
		{ErrRunNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", pipeline.ErrUnknownOrdinal), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", pipeline.ErrStageOrder), http.StatusConflict},
		{poll.ErrTimeout, http.StatusGatewayTimeout},
		{poll.ErrProcessingFailed, http.StatusBadGateway},
		{&graph.RemoteError{Code: 2, Message: "busy", Transient: true}, http.StatusBadGateway},
		{&graph.RemoteError{Code: 100, Message: "bad param"}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, body := problemFor(t, tc.err)
		assert.Equal(t, tc.want, code, "error %v", tc.err)
		assert.NotEmpty(t, body["type"])
		assert.NotEmpty(t, body["title"])
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	_, body := problemFor(t, errors.New("pgx: connection refused at 10.0.0.5"))
	assert.NotContains(t, body["detail"], "10.0.0.5")
}

func TestRegistryTenantScoping(t *testing.T) {
	reg := NewRegistry()
	ta := tenants.Tenant{ID: "tenant-a"}
	id := reg.Create(ta, pipeline.NewRun(ta))

	err := reg.With("tenant-a", id, func(run *pipeline.Run) error { return nil })
	require.NoError(t, err)

	err = reg.With("tenant-b", id, func(run *pipeline.Run) error { return nil })
	require.ErrorIs(t, err, ErrRunNotFound)

	err = reg.Delete("tenant-b", id)
	require.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, reg.Delete("tenant-a", id))
	err = reg.With("tenant-a", id, func(run *pipeline.Run) error { return nil })
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestShapeDecoding(t *testing.T) {
	s, err := shapeBody{Kind: "single_image", ImageHash: "h1"}.toShape()
	require.NoError(t, err)
	assert.Equal(t, creative.SingleImage{ImageHash: "h1"}, s)

	s, err = shapeBody{Kind: "Mixed_Carousel", Cards: []cardBody{{ImageHash: "h1"}, {VideoID: "v1", ImageHash: "th"}}}.toShape()
	require.NoError(t, err)
	mc, ok := s.(creative.MixedCarousel)
	require.True(t, ok)
	assert.Equal(t, "v1", mc.Cards[1].VideoID)

	_, err = shapeBody{Kind: "hexagon"}.toShape()
	var verr *creative.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestVaultRotationScopeGuard(t *testing.T) {
	store := vault.NewMemoryStore(vault.NewCipher("test-key"), time.Hour)
	r := chi.NewRouter()
	VaultRoutes(r, store, []string{"secrets:write"}, zap.NewNop().Sugar())

	body := `{"owner_type":"user","owner_id":"u-1","secret":"page-token"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/secrets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/secrets", strings.NewReader(body))
	req = req.WithContext(middleware.WithScopes(req.Context(), []string{"secrets:write"}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "page-token")
}
