// internal/pipeline/service.go
package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stairway/pkg/config"
	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

// Service drives the paid provisioning chain:
//
//	account discovery → campaign → ad set → asset upload → creative → ad
//
// Stages are strictly sequential within a run; runs across tenants may
// proceed concurrently because the only shared component, the vault, is safe
// behind its own transaction boundary.
type Service struct {
	cfg        config.Config
	log        *zap.SugaredLogger
	client     *graph.Client
	secrets    vault.Store
	submit     *graph.Submitter
	rdb        *redis.Client
	placements PlacementCatalog
	workers    int
}

func NewService(cfg config.Config, log *zap.SugaredLogger, client *graph.Client, secrets vault.Store, rdb *redis.Client, placements PlacementCatalog) *Service {
	workers := cfg.UploadWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		cfg:        cfg,
		log:        log,
		client:     client,
		secrets:    secrets,
		submit:     graph.NewSubmitter(cfg.RetryAttempts, cfg.RetryDelay),
		rdb:        rdb,
		placements: placements,
		workers:    workers,
	}
}

// NewRun opens an isolated reference table for one orchestration.
func (s *Service) NewRun(t tenants.Tenant) *Run { return NewRun(t) }

// NormalizeStatus accepts ACTIVE or PAUSED in any casing; anything else is a
// validation failure raised before any network call.
func NormalizeStatus(status string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(status))
	if v != "ACTIVE" && v != "PAUSED" {
		return "", &creative.ValidationError{Msg: "status must be ACTIVE or PAUSED"}
	}
	return v, nil
}

func (s *Service) userSecret(ctx context.Context, t tenants.Tenant) (vault.Secret, error) {
	return s.secrets.Active(ctx, t.ID, vault.OwnerUser, t.MetaUserID)
}

func (s *Service) pageSecret(ctx context.Context, t tenants.Tenant) (vault.Secret, error) {
	// Resource-level secret preferred, owning user's as documented fallback.
	return vault.ActiveForResource(ctx, s.secrets, t.ID, t.PageID, t.MetaUserID)
}

// DiscoverAccounts lists the tenant's eligible ad accounts, normalized to
// canonical act_ form. Results are cached briefly per tenant.
func (s *Service) DiscoverAccounts(ctx context.Context, run *Run) (accounts []AccountRef, err error) {
	defer func() { observeStage("discover_accounts", err) }()

	if cached := s.cachedAccounts(ctx, run.Tenant.ID); cached != nil {
		run.accounts = cached
		run.advance(StateAccountsFetched)
		return run.Accounts(), nil
	}

	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("access_token", sec.Plaintext)
	params.Set("fields", "id,name")
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.Get(ctx, "/me/adaccounts", params)
	})
	if err != nil {
		return nil, err
	}

	rows, _ := doc["data"].([]any)
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := row["id"].(string)
		name, _ := row["name"].(string)
		if canonical := NormalizeAccountID(id); canonical != "" {
			run.accounts = append(run.accounts, AccountRef{ID: canonical, Name: name})
		}
	}
	s.cacheAccounts(ctx, run.Tenant.ID, run.accounts)
	_ = s.secrets.Touch(ctx, run.Tenant.ID, vault.OwnerUser, run.Tenant.MetaUserID)

	s.log.Infow("accounts discovered", "tenant", run.Tenant.ID, "count", len(run.accounts))
	run.advance(StateAccountsFetched)
	return run.Accounts(), nil
}

// CreateCampaign provisions a campaign under the selected account.
func (s *Service) CreateCampaign(ctx context.Context, run *Run, account AccountIndex, name, objective, status string) (ref *CampaignRef, err error) {
	defer func() { observeStage("create_campaign", err) }()
	if err = run.ensure(StateAccountsFetched); err != nil {
		return nil, err
	}
	acct, err := run.Account(account)
	if err != nil {
		return nil, err
	}
	st, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}
	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("name", name)
	form.Set("objective", strings.TrimSpace(objective))
	form.Set("status", st)
	form.Set("special_ad_categories", `["NONE"]`)
	form.Set("is_adset_budget_sharing_enabled", "false")
	form.Set("access_token", sec.Plaintext)

	s.log.Debugw("campaign.create", "account", acct.ID, "name", name, "token_preview", previewToken(sec.Plaintext))
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+acct.ID+"/campaigns", form)
	})
	if err != nil {
		return nil, err
	}
	remoteID, err := graph.ID(doc)
	if err != nil {
		return nil, err
	}

	ref = &CampaignRef{
		Ordinal:   CampaignIndex(len(run.campaigns)),
		RemoteID:  remoteID,
		AccountID: acct.ID,
		Name:      name,
		Objective: objective,
	}
	run.campaigns = append(run.campaigns, ref)
	run.advance(StateCampaignCreated)
	return ref, nil
}

const (
	defaultDailyBudget = 1000
	defaultAdSetTitle  = "Check this out!"
)

// CreateAdSet provisions an ad set under the campaign, targeting per the
// named placement profile. The returned reference's budget, title and link
// may be mutated locally afterwards; those writes feed later-stage payloads
// of this run only.
func (s *Service) CreateAdSet(ctx context.Context, run *Run, campaign CampaignIndex, status, profileName string) (ref *AdSetRef, err error) {
	defer func() { observeStage("create_adset", err) }()
	if err = run.ensure(StateCampaignCreated); err != nil {
		return nil, err
	}
	camp, err := run.Campaign(campaign)
	if err != nil {
		return nil, err
	}
	st, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}
	profile, err := s.placements.profile(profileName)
	if err != nil {
		return nil, err
	}
	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return nil, err
	}

	promoted, _ := json.Marshal(map[string]any{"page_id": run.Tenant.PageID})
	targeting, _ := json.Marshal(map[string]any{
		"geo_locations":       map[string]any{"countries": profile.Countries},
		"publisher_platforms": profile.PublisherPlatforms,
		"instagram_positions": profile.InstagramPositions,
		"facebook_positions":  profile.FacebookPositions,
	})

	form := url.Values{}
	form.Set("name", camp.Name)
	form.Set("campaign_id", camp.RemoteID)
	form.Set("daily_budget", strconv.Itoa(defaultDailyBudget))
	form.Set("billing_event", profile.BillingEvent)
	form.Set("optimization_goal", profile.OptimizationGoal)
	form.Set("status", st)
	form.Set("promoted_object", string(promoted))
	form.Set("targeting", string(targeting))
	form.Set("bid_strategy", profile.BidStrategy)
	form.Set("access_token", sec.Plaintext)

	s.log.Debugw("adset.create", "campaign", camp.RemoteID, "profile", profile.Name, "token_preview", previewToken(sec.Plaintext))
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+camp.AccountID+"/adsets", form)
	})
	if err != nil {
		return nil, err
	}
	remoteID, err := graph.ID(doc)
	if err != nil {
		return nil, err
	}

	ref = &AdSetRef{
		Ordinal:     AdSetIndex(len(run.adsets)),
		Parent:      camp.Ordinal,
		RemoteID:    remoteID,
		CampaignID:  camp.RemoteID,
		AccountID:   camp.AccountID,
		Name:        camp.Name,
		Status:      st,
		DailyBudget: defaultDailyBudget,
		Title:       defaultAdSetTitle,
	}
	run.adsets = append(run.adsets, ref)
	run.advance(StateAdSetCreated)
	return ref, nil
}

// AdMetadata is the link/text context the terminal ad stage needs.
type AdMetadata struct {
	Name    string
	Message string
	Link    string // caller-supplied default for the link cascade
}

// CreateAd builds the creative payload for the given shape, submits the
// creative, then the ad, both with submission-retry semantics. The returned
// reference carries both remote ids.
func (s *Service) CreateAd(ctx context.Context, run *Run, adset AdSetIndex, shape creative.Shape, meta AdMetadata, status string) (ref *AdRef, err error) {
	defer func() { observeStage("create_ad", err) }()
	if err = run.ensure(StateAssetsUploaded); err != nil {
		return nil, err
	}
	as, err := run.AdSet(adset)
	if err != nil {
		return nil, err
	}
	st, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}

	message := meta.Message
	if message == "" {
		message = as.Title
	}
	payload, err := creative.Build(shape, creative.Metadata{
		PageID:           run.Tenant.PageID,
		InstagramActorID: run.Tenant.InstagramActorID,
		Message:          message,
		Links: creative.Links{
			Default:         meta.Link,
			AdSetLink:       as.Link,
			TenantDefault:   run.Tenant.DefaultLink,
			PlatformDefault: s.cfg.DefaultLinkURL,
		},
	})
	if err != nil {
		return nil, err
	}
	for _, w := range payload.Warnings {
		s.log.Warnw("creative build", "warning", w, "adset", as.RemoteID)
	}

	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return nil, err
	}

	creativeID, err := s.submitCreative(ctx, as, shape, meta.Name, payload, sec.Plaintext)
	if err != nil {
		return nil, err
	}
	run.advance(StateCreativeCreated)

	adID, err := s.submitAd(ctx, as, shape, meta.Name, creativeID, st, sec.Plaintext)
	if err != nil {
		return nil, err
	}

	ref = &AdRef{
		Ordinal:    AdIndex(len(run.ads)),
		Parent:     as.Ordinal,
		RemoteID:   adID,
		CreativeID: creativeID,
		AdSetID:    as.RemoteID,
		AccountID:  as.AccountID,
		Status:     st,
	}
	run.ads = append(run.ads, ref)
	run.advance(StateAdCreated)
	return ref, nil
}

// Carousel creatives go over the JSON surface; singles stay on the form
// surface with object_story_spec as a JSON string. The platform accepts both
// but has historically been most reliable this way per shape.
func (s *Service) submitCreative(ctx context.Context, as *AdSetRef, shape creative.Shape, name string, payload creative.Payload, token string) (string, error) {
	path := "/" + as.AccountID + "/adcreatives"
	var (
		doc map[string]any
		err error
	)
	if isCarousel(shape) {
		body := map[string]any{
			"name":              name,
			"object_story_spec": payload.ObjectStorySpec,
			"access_token":      token,
		}
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostJSON(ctx, path, body)
		})
	} else {
		oss, merr := json.Marshal(payload.ObjectStorySpec)
		if merr != nil {
			return "", merr
		}
		form := url.Values{}
		form.Set("name", name)
		form.Set("object_story_spec", string(oss))
		form.Set("access_token", token)
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostForm(ctx, path, form)
		})
	}
	if err != nil {
		return "", err
	}
	return graph.ID(doc)
}

func (s *Service) submitAd(ctx context.Context, as *AdSetRef, shape creative.Shape, name, creativeID, status, token string) (string, error) {
	path := "/" + as.AccountID + "/ads"
	var (
		doc map[string]any
		err error
	)
	if isCarousel(shape) {
		body := map[string]any{
			"name":         name,
			"adset_id":     as.RemoteID,
			"creative":     map[string]any{"creative_id": creativeID},
			"status":       status,
			"access_token": token,
		}
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostJSON(ctx, path, body)
		})
	} else {
		cr, merr := json.Marshal(map[string]any{"creative_id": creativeID})
		if merr != nil {
			return "", merr
		}
		form := url.Values{}
		form.Set("name", name)
		form.Set("adset_id", as.RemoteID)
		form.Set("creative", string(cr))
		form.Set("status", status)
		form.Set("access_token", token)
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostForm(ctx, path, form)
		})
	}
	if err != nil {
		return "", err
	}
	return graph.ID(doc)
}

func isCarousel(shape creative.Shape) bool {
	switch shape.(type) {
	case creative.ImageCarousel, creative.MixedCarousel:
		return true
	}
	return false
}

// previewToken shows tokens safely in logs.
func previewToken(tok string) string {
	if len(tok) > 20 {
		return tok[:8] + "..." + tok[len(tok)-6:]
	}
	return tok
}
