// internal/pipeline/placements.go
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stairway/pkg/creative"
)

// PlacementProfile describes where an ad set's creatives may surface. The
// profile feeds the targeting object of the ad-set request; video-capable
// profiles include reels, image profiles avoid them for compatibility.
type PlacementProfile struct {
	Name               string   `json:"name" yaml:"name"`
	PublisherPlatforms []string `json:"publisher_platforms" yaml:"publisher_platforms"`
	InstagramPositions []string `json:"instagram_positions" yaml:"instagram_positions"`
	FacebookPositions  []string `json:"facebook_positions" yaml:"facebook_positions"`
	Countries          []string `json:"countries" yaml:"countries"`
	OptimizationGoal   string   `json:"optimization_goal" yaml:"optimization_goal"`
	BillingEvent       string   `json:"billing_event" yaml:"billing_event"`
	BidStrategy        string   `json:"bid_strategy" yaml:"bid_strategy"`
}

// PlacementCatalog maps profile names to profiles.
type PlacementCatalog map[string]PlacementProfile

// DefaultPlacements mirrors the targeting the pipeline has always sent:
// LB geo, reach-optimized, reels for instagram video assets. The facebook
// profiles carry feed and story positions; reels is not a valid facebook
// position.
func DefaultPlacements() PlacementCatalog {
	return PlacementCatalog{
		"video": {
			Name:               "video",
			PublisherPlatforms: []string{"instagram"},
			InstagramPositions: []string{"stream", "story", "reels"},
			FacebookPositions:  []string{},
			Countries:          []string{"LB"},
			OptimizationGoal:   "REACH",
			BillingEvent:       "IMPRESSIONS",
			BidStrategy:        "LOWEST_COST_WITHOUT_CAP",
		},
		"image": {
			Name:               "image",
			PublisherPlatforms: []string{"instagram"},
			InstagramPositions: []string{"stream", "story"},
			FacebookPositions:  []string{},
			Countries:          []string{"LB"},
			OptimizationGoal:   "REACH",
			BillingEvent:       "IMPRESSIONS",
			BidStrategy:        "LOWEST_COST_WITHOUT_CAP",
		},
		"facebook-video": {
			Name:               "facebook-video",
			PublisherPlatforms: []string{"facebook"},
			InstagramPositions: []string{},
			FacebookPositions:  []string{"feed", "story"},
			Countries:          []string{"LB"},
			OptimizationGoal:   "REACH",
			BillingEvent:       "IMPRESSIONS",
			BidStrategy:        "LOWEST_COST_WITHOUT_CAP",
		},
		"facebook-image": {
			Name:               "facebook-image",
			PublisherPlatforms: []string{"facebook"},
			InstagramPositions: []string{},
			FacebookPositions:  []string{"feed", "story"},
			Countries:          []string{"LB"},
			OptimizationGoal:   "REACH",
			BillingEvent:       "IMPRESSIONS",
			BidStrategy:        "LOWEST_COST_WITHOUT_CAP",
		},
	}
}

// LoadPlacements reads a catalog file and overlays it on the defaults; an
// empty path returns the defaults untouched.
func LoadPlacements(path string) (PlacementCatalog, error) {
	catalog := DefaultPlacements()
	if path == "" {
		return catalog, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []PlacementProfile
	if err := yaml.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("placement catalog parse: %w", err)
	}
	for _, p := range specs {
		if p.Name != "" {
			catalog[p.Name] = p
		}
	}
	return catalog, nil
}

func (c PlacementCatalog) profile(name string) (PlacementProfile, error) {
	if p, ok := c[name]; ok {
		return p, nil
	}
	return PlacementProfile{}, &creative.ValidationError{Msg: fmt.Sprintf("unknown placement profile %q", name)}
}
