// pkg/creative/creative.go
//
// Pure construction and validation of creative payloads. Nothing in this
// package performs I/O; every rule here runs before the first network call.
package creative

import (
	"fmt"
)

// AssetKind distinguishes the two remote media handles the platform issues.
type AssetKind string

const (
	AssetImageHash AssetKind = "imageHash"
	AssetVideoID   AssetKind = "videoId"
)

// MediaAsset is the handle an upload stage produced for one binary asset.
type MediaAsset struct {
	Kind     AssetKind
	RemoteID string
}

// Card is one carousel attachment. Every card carries an image hash; video
// cards use their thumbnail hash as surrogate.
type Card struct {
	Name      string
	Link      string
	ImageHash string
	VideoID   string
}

// Carousel cardinality accepted by the platform.
const (
	MinCards = 2
	MaxCards = 10
)

// ValidationError is a shape/cardinality/missing-field failure raised before
// any network call. It is distinct from a RemoteError at the type level so
// callers can branch on kind without string inspection.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ErrMissingThumbnail: a mixed-carousel card carries a video id but no
// thumbnail image hash. Raised immediately, before anything is uploaded or
// submitted.
var ErrMissingThumbnail = &ValidationError{Msg: "video card missing thumbnail image hash"}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Shape is the closed set of creative format variants. Each variant is an
// immutable value with its own constructor-time validation; the sealed method
// keeps the union closed to this package.
type Shape interface {
	shape()
}

// SingleImage promotes exactly one uploaded image.
type SingleImage struct {
	ImageHash string
}

// SingleVideo promotes one uploaded video. A thumbnail (hosted URL or image
// hash) is expected by the platform but its absence is only warned on, not
// hard-failed. A relaxed check carried over deliberately.
type SingleVideo struct {
	VideoID       string
	ThumbnailURL  string
	ThumbnailHash string
}

// ImageCarousel is the homogeneous variant: 2..10 image-only cards. The cover
// is the first card's image hash.
type ImageCarousel struct {
	Cards []Card
}

// MixedCarousel allows video cards, each of which must still carry an image
// hash (its thumbnail).
type MixedCarousel struct {
	Cards []Card
}

func (SingleImage) shape()   {}
func (SingleVideo) shape()   {}
func (ImageCarousel) shape() {}
func (MixedCarousel) shape() {}

// Links is the card link resolution cascade. First non-empty wins:
// explicit card link, caller-supplied default, ad-set stored link,
// tenant default, platform default.
type Links struct {
	Default         string // caller-supplied for this build
	AdSetLink       string // locally-stored on the ad set reference
	TenantDefault   string // tenant-level fallback
	PlatformDefault string
}

const hardDefaultLink = "https://www.instagram.com/"

func (l Links) resolve(cardLink string) string {
	for _, cand := range []string{cardLink, l.Default, l.AdSetLink, l.TenantDefault, l.PlatformDefault} {
		if cand != "" {
			return cand
		}
	}
	return hardDefaultLink
}

// Metadata is the link/text context a build needs besides the shape itself.
type Metadata struct {
	PageID           string
	InstagramActorID string
	Message          string
	Links            Links
}

// Payload is the opaque creative request body handed to the transport layer.
type Payload struct {
	// ObjectStorySpec is sent as the object_story_spec field.
	ObjectStorySpec map[string]any
	// CoverHash is set for carousels: the first card's image hash.
	CoverHash string
	// Warnings carries relaxed-check notices (no thumbnail on single video).
	Warnings []string
}
