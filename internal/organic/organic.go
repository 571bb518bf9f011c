// internal/organic/organic.go
package organic

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"stairway/pkg/config"
	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/poll"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

// ItemKind selects how a carousel child is submitted.
type ItemKind string

const (
	ItemImage ItemKind = "image"
	ItemVideo ItemKind = "video"
)

// Item is one carousel child.
type Item struct {
	Kind ItemKind `json:"kind"`
	URL  string   `json:"url"`
}

// Post carries everything one organic publication needs. Values are scoped to
// the request that supplies them; nothing is parked in process state between
// the container and publish steps.
type Post struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Items    []Item `json:"items,omitempty"`
}

// ContainerRef identifies a created, possibly still-processing media container.
type ContainerRef struct {
	ID string `json:"container_id"`
}

// PublishedRef identifies the live post.
type PublishedRef struct {
	ID          string `json:"post_id"`
	ContainerID string `json:"container_id"`
}

// Service creates media containers against the tenant's Instagram actor and
// publishes them once platform-side processing finishes. All calls use the
// page-scoped secret, falling back to the owning user's.
type Service struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	client  *graph.Client
	secrets vault.Store
	submit  *graph.Submitter
	waiter  *poll.Waiter
	norm    Normalizer
}

func NewService(cfg config.Config, log *zap.SugaredLogger, client *graph.Client, secrets vault.Store) *Service {
	return &Service{
		cfg:     cfg,
		log:     log,
		client:  client,
		secrets: secrets,
		submit:  graph.NewSubmitter(cfg.RetryAttempts, cfg.RetryDelay),
		waiter:  poll.NewWaiter(cfg.PollAttempts, cfg.PollInterval),
		norm:    NewNormalizer(cfg.PublicBaseURL, cfg.NgrokBaseURL),
	}
}

func (s *Service) pageSecret(ctx context.Context, t tenants.Tenant) (vault.Secret, error) {
	return vault.ActiveForResource(ctx, s.secrets, t.ID, t.PageID, t.MetaUserID)
}

func (s *Service) actor(t tenants.Tenant) (string, error) {
	if strings.TrimSpace(t.InstagramActorID) == "" {
		return "", &creative.ValidationError{Msg: "no Instagram account linked to this tenant"}
	}
	return t.InstagramActorID, nil
}

// CreateImageContainer stages a single-photo post.
func (s *Service) CreateImageContainer(ctx context.Context, t tenants.Tenant, post Post) (ref ContainerRef, err error) {
	defer func() { containerTotal.WithLabelValues("image", outcome(err)).Inc() }()
	if strings.TrimSpace(post.ImageURL) == "" {
		return ContainerRef{}, &creative.ValidationError{Msg: "image_url not set"}
	}
	ig, err := s.actor(t)
	if err != nil {
		return ContainerRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return ContainerRef{}, err
	}
	mediaURL, err := s.norm.Normalize(post.ImageURL)
	if err != nil {
		return ContainerRef{}, err
	}

	form := url.Values{}
	form.Set("image_url", mediaURL)
	form.Set("caption", post.Caption)
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+ig+"/media", form)
	})
	if err != nil {
		return ContainerRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return ContainerRef{}, err
	}
	s.log.Infow("image container created", "tenant", t.ID, "container", id)
	return ContainerRef{ID: id}, nil
}

// CreateVideoContainer stages a reel.
func (s *Service) CreateVideoContainer(ctx context.Context, t tenants.Tenant, post Post) (ref ContainerRef, err error) {
	defer func() { containerTotal.WithLabelValues("video", outcome(err)).Inc() }()
	if strings.TrimSpace(post.VideoURL) == "" {
		return ContainerRef{}, &creative.ValidationError{Msg: "video_url not set"}
	}
	ig, err := s.actor(t)
	if err != nil {
		return ContainerRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return ContainerRef{}, err
	}
	mediaURL, err := s.norm.Normalize(post.VideoURL)
	if err != nil {
		return ContainerRef{}, err
	}

	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("video_url", mediaURL)
	form.Set("caption", post.Caption)
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+ig+"/media", form)
	})
	if err != nil {
		return ContainerRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return ContainerRef{}, err
	}
	s.log.Infow("video container created", "tenant", t.ID, "container", id)
	return ContainerRef{ID: id}, nil
}

// CreateCarouselContainer stages a carousel: children are created one at a
// time, each child waits out platform-side processing, then the parent
// container binds them in submission order.
func (s *Service) CreateCarouselContainer(ctx context.Context, t tenants.Tenant, post Post) (ref ContainerRef, err error) {
	defer func() { containerTotal.WithLabelValues("carousel", outcome(err)).Inc() }()
	if len(post.Items) < creative.MinCards || len(post.Items) > creative.MaxCards {
		return ContainerRef{}, &creative.ValidationError{Msg: "carousel requires between 2 and 10 items"}
	}
	ig, err := s.actor(t)
	if err != nil {
		return ContainerRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return ContainerRef{}, err
	}

	childIDs := make([]string, 0, len(post.Items))
	for _, item := range post.Items {
		mediaURL, nerr := s.norm.Normalize(item.URL)
		if nerr != nil {
			return ContainerRef{}, nerr
		}
		form := url.Values{}
		switch ItemKind(strings.ToLower(strings.TrimSpace(string(item.Kind)))) {
		case ItemImage:
			form.Set("image_url", mediaURL)
		case ItemVideo:
			form.Set("media_type", "VIDEO")
			form.Set("video_url", mediaURL)
		default:
			return ContainerRef{}, &creative.ValidationError{Msg: "unsupported carousel media type: " + string(item.Kind)}
		}
		form.Set("is_carousel_item", "true")
		form.Set("access_token", sec.Plaintext)

		doc, cerr := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostForm(ctx, "/"+ig+"/media", form)
		})
		if cerr != nil {
			return ContainerRef{}, cerr
		}
		id, cerr := graph.ID(doc)
		if cerr != nil {
			return ContainerRef{}, cerr
		}
		childIDs = append(childIDs, id)
	}

	for _, cid := range childIDs {
		if err = s.waiter.Wait(ctx, s.statusFetch(cid, sec.Plaintext)); err != nil {
			return ContainerRef{}, err
		}
	}

	form := url.Values{}
	form.Set("media_type", "CAROUSEL")
	form.Set("children", strings.Join(childIDs, ","))
	form.Set("caption", post.Caption)
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+ig+"/media", form)
	})
	if err != nil {
		return ContainerRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return ContainerRef{}, err
	}
	s.log.Infow("carousel container created", "tenant", t.ID, "container", id, "children", len(childIDs))
	return ContainerRef{ID: id}, nil
}

// WaitAndPublish blocks until the container finishes processing, then
// publishes it to the tenant's Instagram actor.
func (s *Service) WaitAndPublish(ctx context.Context, t tenants.Tenant, containerID string) (ref PublishedRef, err error) {
	defer func() { publishTotal.WithLabelValues(outcome(err)).Inc() }()
	if strings.TrimSpace(containerID) == "" {
		return PublishedRef{}, &creative.ValidationError{Msg: "container id not set"}
	}
	ig, err := s.actor(t)
	if err != nil {
		return PublishedRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return PublishedRef{}, err
	}

	if err = s.waiter.Wait(ctx, s.statusFetch(containerID, sec.Plaintext)); err != nil {
		return PublishedRef{}, err
	}

	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+ig+"/media_publish", form)
	})
	if err != nil {
		return PublishedRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return PublishedRef{}, err
	}
	s.log.Infow("post published", "tenant", t.ID, "container", containerID, "post", id)
	return PublishedRef{ID: id, ContainerID: containerID}, nil
}

func (s *Service) statusFetch(id, token string) poll.StatusFunc {
	return func(ctx context.Context) (poll.Status, error) {
		params := url.Values{}
		params.Set("fields", "status_code")
		params.Set("access_token", token)
		doc, err := s.client.Get(ctx, "/"+id, params)
		if err != nil {
			return poll.Pending, err
		}
		code, _ := doc["status_code"].(string)
		return poll.Classify(code), nil
	}
}
