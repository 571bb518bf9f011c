package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stairway/pkg/config"
	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

// graphStub records every request body per path and serves canned creation
// responses.
type graphStub struct {
	mu    sync.Mutex
	forms map[string][]map[string]string // path suffix -> decoded bodies
	delay map[string]time.Duration       // per-filename upload delay
}

func newGraphStub() *graphStub {
	return &graphStub{forms: map[string][]map[string]string{}, delay: map[string]time.Duration{}}
}

func (g *graphStub) record(suffix string, body map[string]string) {
	g.mu.Lock()
	g.forms[suffix] = append(g.forms[suffix], body)
	g.mu.Unlock()
}

func (g *graphStub) recorded(suffix string) []map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]string(nil), g.forms[suffix]...)
}

func (g *graphStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v17.0")
		switch {
		case path == "/me/adaccounts":
			w.Write([]byte(`{"data":[{"id":"act_act_123","name":"Main"},{"id":"456","name":"Side"}]}`))

		case strings.HasSuffix(path, "/campaigns"):
			g.record("/campaigns", formBody(t, r))
			w.Write([]byte(`{"id":"camp_1"}`))

		case strings.HasSuffix(path, "/adsets"):
			g.record("/adsets", formBody(t, r))
			w.Write([]byte(`{"id":"adset_1"}`))

		case strings.HasSuffix(path, "/adimages"):
			require.NoError(t, r.ParseMultipartForm(32<<20))
			fh := r.MultipartForm.File["filename"][0]
			g.mu.Lock()
			d := g.delay[fh.Filename]
			g.mu.Unlock()
			time.Sleep(d)
			g.record("/adimages", map[string]string{"filename": fh.Filename})
			w.Write([]byte(`{"images":{"` + fh.Filename + `":{"hash":"h-` + fh.Filename + `"}}}`))

		case strings.HasSuffix(path, "/advideos"):
			require.NoError(t, r.ParseMultipartForm(32<<20))
			g.record("/advideos", map[string]string{"filename": r.MultipartForm.File["source"][0].Filename})
			w.Write([]byte(`{"id":"vid_1"}`))

		case strings.HasSuffix(path, "/videos"):
			g.record("/videos", formBody(t, r))
			w.Write([]byte(`{"id":"vid_hosted_1"}`))

		case strings.HasSuffix(path, "/adcreatives"):
			g.record("/adcreatives", anyBody(t, r))
			w.Write([]byte(`{"id":"creative_1"}`))

		case strings.HasSuffix(path, "/ads"):
			g.record("/ads", anyBody(t, r))
			w.Write([]byte(`{"id":"ad_1"}`))

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"unknown path","code":803}}`))
		}
	}
}

func formBody(t *testing.T, r *http.Request) map[string]string {
	require.NoError(t, r.ParseForm())
	out := map[string]string{}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out
}

// anyBody flattens either a form or a JSON body into string values; nested
// JSON objects are re-serialized so assertions can parse what they need.
func anyBody(t *testing.T, r *http.Request) map[string]string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var doc map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		out := map[string]string{}
		for k, v := range doc {
			if s, ok := v.(string); ok {
				out[k] = s
				continue
			}
			b, err := json.Marshal(v)
			require.NoError(t, err)
			out[k] = string(b)
		}
		return out
	}
	return formBody(t, r)
}

func newTestService(t *testing.T, stub *graphStub) (*Service, tenants.Tenant) {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	tenant := tenants.Tenant{
		ID:               "00000000-0000-0000-0000-000000000001",
		Slug:             "acme",
		MetaUserID:       "meta-user-1",
		PageID:           "page-1",
		InstagramActorID: "ig-1",
	}
	secrets := vault.NewMemoryStore(nil, 58*24*time.Hour)
	_, err := secrets.Store(context.Background(), tenant.ID, vault.OwnerUser, tenant.MetaUserID, "user-token", nil)
	require.NoError(t, err)

	cfg := config.Config{
		DefaultLinkURL: "https://www.instagram.com/",
		UploadWorkers:  2,
		RetryAttempts:  1,
	}
	svc := NewService(cfg, zap.NewNop().Sugar(), graph.NewClient(srv.URL, "v17.0"), secrets, nil, DefaultPlacements())
	return svc, tenant
}

func TestFullProvisioningChain(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	accounts, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "act_123", accounts[0].ID, "repeated prefixes collapse to one")
	assert.Equal(t, "act_456", accounts[1].ID, "bare ids gain the prefix")

	camp, err := svc.CreateCampaign(ctx, run, 0, "Spring", "OUTCOME_TRAFFIC", "active")
	require.NoError(t, err)
	assert.Equal(t, "camp_1", camp.RemoteID)
	campForm := stub.recorded("/campaigns")[0]
	assert.Equal(t, "ACTIVE", campForm["status"])
	assert.Equal(t, `["NONE"]`, campForm["special_ad_categories"])
	assert.Equal(t, "false", campForm["is_adset_budget_sharing_enabled"])

	as, err := svc.CreateAdSet(ctx, run, camp.Ordinal, "PAUSED", "image")
	require.NoError(t, err)
	assert.Equal(t, "adset_1", as.RemoteID)
	adsetForm := stub.recorded("/adsets")[0]
	assert.Equal(t, "1000", adsetForm["daily_budget"])
	assert.Equal(t, "Spring", adsetForm["name"])
	assert.Contains(t, adsetForm["targeting"], "instagram")
	assert.Contains(t, adsetForm["promoted_object"], "page-1")

	// Local mutations after creation must not appear in the already-sent
	// ad set request, only in later-stage payloads.
	require.NoError(t, run.SetBudget(as.Ordinal, 5000))
	require.NoError(t, run.SetTitle(as.Ordinal, "Fresh drop"))
	require.NoError(t, run.SetLink(as.Ordinal, "https://example.com/drop"))
	assert.Equal(t, "1000", stub.recorded("/adsets")[0]["daily_budget"])

	sources := []Source{
		{Name: "a.png", Data: strings.NewReader("A")},
		{Name: "b.png", Data: strings.NewReader("B")},
		{Name: "c.png", Data: strings.NewReader("C")},
	}
	assets, err := svc.UploadImages(ctx, run, as.Ordinal, sources)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "h-a.png", assets[0].RemoteID)
	assert.Equal(t, "h-c.png", assets[2].RemoteID)

	cards := make([]creative.Card, 0, len(assets))
	for _, a := range assets {
		cards = append(cards, creative.Card{ImageHash: a.RemoteID})
	}
	ad, err := svc.CreateAd(ctx, run, as.Ordinal, creative.ImageCarousel{Cards: cards}, AdMetadata{Name: "Ad one"}, "paused")
	require.NoError(t, err)
	assert.Equal(t, "ad_1", ad.RemoteID)
	assert.Equal(t, "creative_1", ad.CreativeID)
	assert.Equal(t, StateAdCreated, run.State)

	// Carousel creative goes over the JSON surface with the mutated title as
	// message and the mutated link resolving the cascade.
	creativeBody := stub.recorded("/adcreatives")[0]
	var oss map[string]any
	require.NoError(t, json.Unmarshal([]byte(creativeBody["object_story_spec"]), &oss))
	linkData := oss["link_data"].(map[string]any)
	assert.Equal(t, "Fresh drop", linkData["message"])
	assert.Equal(t, "https://example.com/drop", linkData["link"])
	assert.Len(t, linkData["child_attachments"], 3)

	adBody := stub.recorded("/ads")[0]
	assert.Equal(t, "PAUSED", adBody["status"])
	assert.Equal(t, "adset_1", adBody["adset_id"])
}

func TestUploadOrderStableUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	stub.delay["a.png"] = 60 * time.Millisecond
	stub.delay["b.png"] = 30 * time.Millisecond
	stub.delay["c.png"] = 0
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	_, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	camp, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.NoError(t, err)
	as, err := svc.CreateAdSet(ctx, run, camp.Ordinal, "ACTIVE", "image")
	require.NoError(t, err)

	assets, err := svc.UploadImages(ctx, run, as.Ordinal, []Source{
		{Name: "a.png", Data: strings.NewReader("A")},
		{Name: "b.png", Data: strings.NewReader("B")},
		{Name: "c.png", Data: strings.NewReader("C")},
	})
	require.NoError(t, err)
	require.Len(t, assets, 3)
	// Completion order is c, b, a; slot order must stay a, b, c.
	assert.Equal(t, "h-a.png", assets[0].RemoteID)
	assert.Equal(t, "h-b.png", assets[1].RemoteID)
	assert.Equal(t, "h-c.png", assets[2].RemoteID)
}

func TestUploadImagesCancelledContextFails(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	_, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	camp, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.NoError(t, err)
	as, err := svc.CreateAdSet(ctx, run, camp.Ordinal, "ACTIVE", "image")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assets, err := svc.UploadImages(cancelled, run, as.Ordinal, []Source{
		{Name: "a.png", Data: strings.NewReader("A")},
		{Name: "b.png", Data: strings.NewReader("B")},
		{Name: "c.png", Data: strings.NewReader("C")},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, assets)
	// The run must not advance on a cancelled upload stage.
	assert.Equal(t, StateAdSetCreated, run.State)
}

func TestFacebookPlacementProfile(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	_, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	camp, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.NoError(t, err)
	_, err = svc.CreateAdSet(ctx, run, camp.Ordinal, "ACTIVE", "facebook-image")
	require.NoError(t, err)

	targeting := stub.recorded("/adsets")[0]["targeting"]
	assert.Contains(t, targeting, `"facebook"`)
	assert.Contains(t, targeting, "feed")
	// reels is not a valid facebook position
	assert.NotContains(t, targeting, "reels")
}

func TestTenantDefaultLinkFillsCascade(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	tenant.DefaultLink = "https://acme.example.com/shop"
	run := svc.NewRun(tenant)

	_, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	camp, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.NoError(t, err)
	as, err := svc.CreateAdSet(ctx, run, camp.Ordinal, "ACTIVE", "image")
	require.NoError(t, err)
	asset, err := svc.UploadImage(ctx, run, as.Ordinal, Source{Name: "a.png", Data: strings.NewReader("A")})
	require.NoError(t, err)

	// No per-ad link and no ad-set link: the tenant fallback wins over the
	// platform default.
	_, err = svc.CreateAd(ctx, run, as.Ordinal, creative.SingleImage{ImageHash: asset.RemoteID}, AdMetadata{Name: "Ad"}, "paused")
	require.NoError(t, err)
	creativeBody := stub.recorded("/adcreatives")[0]
	var oss map[string]any
	require.NoError(t, json.Unmarshal([]byte(creativeBody["object_story_spec"]), &oss))
	linkData := oss["link_data"].(map[string]any)
	assert.Equal(t, "https://acme.example.com/shop", linkData["link"])
}

func TestStageOrderEnforced(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	_, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.ErrorIs(t, err, ErrStageOrder)

	_, err = svc.CreateAdSet(ctx, run, 0, "ACTIVE", "image")
	require.ErrorIs(t, err, ErrStageOrder)

	assert.Empty(t, stub.recorded("/campaigns"), "no network call before validation")
}

func TestUnknownOrdinalRejected(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)
	run := svc.NewRun(tenant)

	_, err := svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	_, err = svc.CreateCampaign(ctx, run, 7, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.ErrorIs(t, err, ErrUnknownOrdinal)
}

func TestNormalizeStatus(t *testing.T) {
	for in, want := range map[string]string{"active": "ACTIVE", " Paused ": "PAUSED", "ACTIVE": "ACTIVE"} {
		got, err := NormalizeStatus(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := NormalizeStatus("archived")
	var verr *creative.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNormalizeAccountID(t *testing.T) {
	assert.Equal(t, "act_123", NormalizeAccountID("123"))
	assert.Equal(t, "act_123", NormalizeAccountID("act_123"))
	assert.Equal(t, "act_123", NormalizeAccountID("act_act_act_123"))
	assert.Equal(t, "", NormalizeAccountID(""))
}

func TestHostedVideoUsesPageSecret(t *testing.T) {
	ctx := context.Background()
	stub := newGraphStub()
	svc, tenant := newTestService(t, stub)

	// Store a distinct page-scoped secret; the hosted upload must pick it.
	_, err := svc.secrets.Store(ctx, tenant.ID, vault.OwnerResource, tenant.PageID, "page-token", nil)
	require.NoError(t, err)

	run := svc.NewRun(tenant)
	_, err = svc.DiscoverAccounts(ctx, run)
	require.NoError(t, err)
	camp, err := svc.CreateCampaign(ctx, run, 0, "C", "OUTCOME_TRAFFIC", "ACTIVE")
	require.NoError(t, err)
	as, err := svc.CreateAdSet(ctx, run, camp.Ordinal, "ACTIVE", "video")
	require.NoError(t, err)

	asset, err := svc.UploadVideo(ctx, run, as.Ordinal, Source{URL: "https://cdn.example.com/v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, creative.AssetVideoID, asset.Kind)
	assert.Equal(t, "vid_hosted_1", asset.RemoteID)

	form := stub.recorded("/videos")[0]
	assert.Equal(t, "https://cdn.example.com/v.mp4", form["file_url"])
	assert.Equal(t, "page-token", form["access_token"])
}
