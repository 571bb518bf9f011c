// internal/pipeline/refs.go
package pipeline

import (
	"errors"
	"fmt"

	"stairway/pkg/tenants"
)

// State tracks how far a run has progressed. Stages only ever move forward;
// a run that fails stays where it failed, with whatever remote entities were
// already created left in place.
type State int

const (
	StateNew State = iota
	StateAccountsFetched
	StateCampaignCreated
	StateAdSetCreated
	StateAssetsUploaded
	StateCreativeCreated
	StateAdCreated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateAccountsFetched:
		return "AccountsFetched"
	case StateCampaignCreated:
		return "CampaignCreated"
	case StateAdSetCreated:
		return "AdSetCreated"
	case StateAssetsUploaded:
		return "AssetsUploaded"
	case StateCreativeCreated:
		return "CreativeCreated"
	case StateAdCreated:
		return "AdCreated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Distinct index types per stage. A CampaignIndex can never be handed to a
// stage expecting an AdSetIndex.
type (
	AccountIndex  int
	CampaignIndex int
	AdSetIndex    int
	AdIndex       int
)

// ErrUnknownOrdinal: a stage referenced an ordinal the run never recorded.
var ErrUnknownOrdinal = errors.New("pipeline: unknown ordinal")

// ErrStageOrder: a stage was invoked before its predecessor completed.
var ErrStageOrder = errors.New("pipeline: stage out of order")

// AccountRef is a discovered, normalized ad account.
type AccountRef struct {
	ID   string `json:"id"` // canonical act_-prefixed id
	Name string `json:"name"`
}

// CampaignRef records one created campaign, addressed by its ordinal.
type CampaignRef struct {
	Ordinal   CampaignIndex `json:"ordinal"`
	RemoteID  string        `json:"remote_id"`
	AccountID string        `json:"account_id"`
	Name      string        `json:"name"`
	Objective string        `json:"objective"`
}

// AdSetRef records one created ad set. DailyBudget, Title and Link are
// locally mutable after creation: writes only affect payloads built in later
// stages of the same run, never the already-created remote ad set.
type AdSetRef struct {
	Ordinal     AdSetIndex    `json:"ordinal"`
	Parent      CampaignIndex `json:"campaign_ordinal"`
	RemoteID    string        `json:"remote_id"`
	CampaignID  string        `json:"campaign_id"`
	AccountID   string        `json:"account_id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	DailyBudget int           `json:"daily_budget"`
	Title       string        `json:"title"`
	Link        string        `json:"link,omitempty"`
}

// AdRef is the terminal entity of a paid run.
type AdRef struct {
	Ordinal    AdIndex    `json:"ordinal"`
	Parent     AdSetIndex `json:"adset_ordinal"`
	RemoteID   string     `json:"remote_id"`
	CreativeID string     `json:"creative_id"`
	AdSetID    string     `json:"adset_id"`
	AccountID  string     `json:"account_id"`
	Status     string     `json:"status"`
}

// Run is the reference table for one orchestration: append-only arenas
// addressed by typed ordinals. A run lives for exactly one call chain and is
// never shared across concurrent execution units.
type Run struct {
	Tenant tenants.Tenant
	State  State

	accounts  []AccountRef
	campaigns []*CampaignRef
	adsets    []*AdSetRef
	ads       []*AdRef
}

func NewRun(t tenants.Tenant) *Run {
	return &Run{Tenant: t, State: StateNew}
}

// ensure rejects stage calls arriving before their predecessor.
func (r *Run) ensure(min State) error {
	if r.State < min {
		return fmt.Errorf("%w: run is %s", ErrStageOrder, r.State)
	}
	return nil
}

// advance only ever moves the state forward.
func (r *Run) advance(to State) {
	if to > r.State {
		r.State = to
	}
}

func (r *Run) Accounts() []AccountRef { return append([]AccountRef(nil), r.accounts...) }

// Snapshot is a read-only view of everything the run has provisioned so far.
type Snapshot struct {
	State     string        `json:"state"`
	Accounts  []AccountRef  `json:"accounts,omitempty"`
	Campaigns []CampaignRef `json:"campaigns,omitempty"`
	AdSets    []AdSetRef    `json:"adsets,omitempty"`
	Ads       []AdRef       `json:"ads,omitempty"`
}

func (r *Run) Snapshot() Snapshot {
	snap := Snapshot{State: r.State.String(), Accounts: r.Accounts()}
	for _, c := range r.campaigns {
		snap.Campaigns = append(snap.Campaigns, *c)
	}
	for _, a := range r.adsets {
		snap.AdSets = append(snap.AdSets, *a)
	}
	for _, a := range r.ads {
		snap.Ads = append(snap.Ads, *a)
	}
	return snap
}

func (r *Run) Account(i AccountIndex) (AccountRef, error) {
	if int(i) < 0 || int(i) >= len(r.accounts) {
		return AccountRef{}, fmt.Errorf("%w: account %d", ErrUnknownOrdinal, i)
	}
	return r.accounts[i], nil
}

func (r *Run) Campaign(i CampaignIndex) (*CampaignRef, error) {
	if int(i) < 0 || int(i) >= len(r.campaigns) {
		return nil, fmt.Errorf("%w: campaign %d", ErrUnknownOrdinal, i)
	}
	return r.campaigns[i], nil
}

func (r *Run) AdSet(i AdSetIndex) (*AdSetRef, error) {
	if int(i) < 0 || int(i) >= len(r.adsets) {
		return nil, fmt.Errorf("%w: ad set %d", ErrUnknownOrdinal, i)
	}
	return r.adsets[i], nil
}

func (r *Run) Ad(i AdIndex) (*AdRef, error) {
	if int(i) < 0 || int(i) >= len(r.ads) {
		return nil, fmt.Errorf("%w: ad %d", ErrUnknownOrdinal, i)
	}
	return r.ads[i], nil
}

// SetBudget, SetTitle and SetLink mutate the local ad-set reference only.
// They never re-sync to the remote entity.
func (r *Run) SetBudget(i AdSetIndex, budget int) error {
	as, err := r.AdSet(i)
	if err != nil {
		return err
	}
	as.DailyBudget = budget
	return nil
}

func (r *Run) SetTitle(i AdSetIndex, title string) error {
	as, err := r.AdSet(i)
	if err != nil {
		return err
	}
	as.Title = title
	return nil
}

func (r *Run) SetLink(i AdSetIndex, link string) error {
	as, err := r.AdSet(i)
	if err != nil {
		return err
	}
	as.Link = link
	return nil
}
