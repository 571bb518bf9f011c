// internal/organic/facebook.go
package organic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/tenants"
)

// PageRef identifies a post published to the tenant's Facebook page. Page
// photos and videos go live at upload time; there is no container step and
// nothing to poll, video nodes expose no status_code.
type PageRef struct {
	ID string `json:"post_id"`
}

// PageBundle reports a mixed publication. The platform has no true mixed
// image+video swipe post for page feeds, so each video becomes its own post
// and all images land in one multi-photo feed post.
type PageBundle struct {
	VideoIDs    []string `json:"video_ids,omitempty"`
	PhotoIDs    []string `json:"photo_ids,omitempty"`
	PhotoPostID string   `json:"photo_post_id,omitempty"`
}

func (s *Service) page(t tenants.Tenant) (string, error) {
	if strings.TrimSpace(t.PageID) == "" {
		return "", &creative.ValidationError{Msg: "no Facebook page linked to this tenant"}
	}
	return t.PageID, nil
}

// PublishPagePhoto posts a single photo to the page feed.
func (s *Service) PublishPagePhoto(ctx context.Context, t tenants.Tenant, post Post) (ref PageRef, err error) {
	defer func() { pagePublishTotal.WithLabelValues("photo", outcome(err)).Inc() }()
	if strings.TrimSpace(post.ImageURL) == "" {
		return PageRef{}, &creative.ValidationError{Msg: "image_url not set"}
	}
	page, err := s.page(t)
	if err != nil {
		return PageRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return PageRef{}, err
	}
	mediaURL, err := s.norm.Normalize(post.ImageURL)
	if err != nil {
		return PageRef{}, err
	}

	form := url.Values{}
	form.Set("url", mediaURL)
	form.Set("caption", post.Caption)
	form.Set("published", "true")
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+page+"/photos", form)
	})
	if err != nil {
		return PageRef{}, err
	}
	// The response carries the photo node id and, for published uploads, the
	// feed post id. Callers link to the post.
	id, err := graph.Extract(doc, "post_id || id")
	if err != nil {
		return PageRef{}, err
	}
	s.log.Infow("page photo published", "tenant", t.ID, "post", id)
	return PageRef{ID: id}, nil
}

// PublishPageVideo posts a single hosted video to the page feed.
func (s *Service) PublishPageVideo(ctx context.Context, t tenants.Tenant, post Post) (ref PageRef, err error) {
	defer func() { pagePublishTotal.WithLabelValues("video", outcome(err)).Inc() }()
	if strings.TrimSpace(post.VideoURL) == "" {
		return PageRef{}, &creative.ValidationError{Msg: "video_url not set"}
	}
	page, err := s.page(t)
	if err != nil {
		return PageRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return PageRef{}, err
	}
	mediaURL, err := s.norm.Normalize(post.VideoURL)
	if err != nil {
		return PageRef{}, err
	}

	doc, err := s.publishPageVideo(ctx, page, mediaURL, post.Caption, sec.Plaintext)
	if err != nil {
		return PageRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return PageRef{}, err
	}
	s.log.Infow("page video published", "tenant", t.ID, "post", id)
	return PageRef{ID: id}, nil
}

func (s *Service) publishPageVideo(ctx context.Context, page, fileURL, description, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("file_url", fileURL)
	form.Set("published", "true")
	form.Set("description", description)
	form.Set("access_token", token)
	return s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+page+"/videos", form)
	})
}

// PublishPageCarousel posts an image-only link carousel via child_attachments.
// linkURL is the click-through target; when empty the first image stands in.
func (s *Service) PublishPageCarousel(ctx context.Context, t tenants.Tenant, post Post, linkURL string) (ref PageRef, err error) {
	defer func() { pagePublishTotal.WithLabelValues("carousel", outcome(err)).Inc() }()
	if len(post.Items) < creative.MinCards || len(post.Items) > creative.MaxCards {
		return PageRef{}, &creative.ValidationError{Msg: "carousel requires between 2 and 10 items"}
	}
	page, err := s.page(t)
	if err != nil {
		return PageRef{}, err
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return PageRef{}, err
	}

	var firstImage string
	attachments := make([]map[string]string, 0, len(post.Items))
	for _, item := range post.Items {
		if ItemKind(strings.ToLower(strings.TrimSpace(string(item.Kind)))) != ItemImage {
			return PageRef{}, &creative.ValidationError{Msg: "page carousels support images only; use the bundle endpoint for videos"}
		}
		mediaURL, nerr := s.norm.Normalize(item.URL)
		if nerr != nil {
			return PageRef{}, nerr
		}
		if firstImage == "" {
			firstImage = mediaURL
		}
		link := linkURL
		if link == "" {
			link = firstImage
		}
		attachments = append(attachments, map[string]string{"link": link, "picture": mediaURL})
	}
	finalLink := linkURL
	if finalLink == "" {
		finalLink = firstImage
	}
	if finalLink == "" {
		return PageRef{}, &creative.ValidationError{Msg: "link_url not set and no image URL available"}
	}
	children, err := json.Marshal(attachments)
	if err != nil {
		return PageRef{}, err
	}

	form := url.Values{}
	form.Set("message", post.Caption)
	form.Set("link", finalLink)
	form.Set("child_attachments", string(children))
	form.Set("is_published", "true")
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+page+"/feed", form)
	})
	if err != nil {
		return PageRef{}, err
	}
	id, err := graph.ID(doc)
	if err != nil {
		return PageRef{}, err
	}
	s.log.Infow("page carousel published", "tenant", t.ID, "post", id, "children", len(attachments))
	return PageRef{ID: id}, nil
}

// PublishPageBundle publishes a mixed item set: every video as its own feed
// post and all images together as one multi-photo post via attached_media.
func (s *Service) PublishPageBundle(ctx context.Context, t tenants.Tenant, post Post) (bundle PageBundle, err error) {
	defer func() { pagePublishTotal.WithLabelValues("bundle", outcome(err)).Inc() }()
	page, err := s.page(t)
	if err != nil {
		return PageBundle{}, err
	}

	var imageURLs, videoURLs []string
	for _, item := range post.Items {
		mediaURL, nerr := s.norm.Normalize(item.URL)
		if nerr != nil {
			return PageBundle{}, nerr
		}
		switch ItemKind(strings.ToLower(strings.TrimSpace(string(item.Kind)))) {
		case ItemImage:
			imageURLs = append(imageURLs, mediaURL)
		case ItemVideo:
			videoURLs = append(videoURLs, mediaURL)
		default:
			return PageBundle{}, &creative.ValidationError{Msg: "unsupported bundle media type: " + string(item.Kind)}
		}
	}
	if len(imageURLs) == 0 && len(videoURLs) == 0 {
		return PageBundle{}, &creative.ValidationError{Msg: "bundle has no image or video items"}
	}
	sec, err := s.pageSecret(ctx, t)
	if err != nil {
		return PageBundle{}, err
	}

	for i, vurl := range videoURLs {
		description := post.Caption
		if len(videoURLs) > 1 {
			description = fmt.Sprintf("%s (Video %d/%d)", post.Caption, i+1, len(videoURLs))
		}
		doc, verr := s.publishPageVideo(ctx, page, vurl, description, sec.Plaintext)
		if verr != nil {
			return PageBundle{}, verr
		}
		id, verr := graph.ID(doc)
		if verr != nil {
			return PageBundle{}, verr
		}
		bundle.VideoIDs = append(bundle.VideoIDs, id)
	}

	if len(imageURLs) == 0 {
		return bundle, nil
	}
	for _, iurl := range imageURLs {
		form := url.Values{}
		form.Set("url", iurl)
		form.Set("published", "false")
		form.Set("access_token", sec.Plaintext)
		doc, perr := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostForm(ctx, "/"+page+"/photos", form)
		})
		if perr != nil {
			return PageBundle{}, perr
		}
		id, perr := graph.ID(doc)
		if perr != nil {
			return PageBundle{}, perr
		}
		bundle.PhotoIDs = append(bundle.PhotoIDs, id)
	}

	attached := make([]map[string]string, 0, len(bundle.PhotoIDs))
	for _, pid := range bundle.PhotoIDs {
		attached = append(attached, map[string]string{"media_fbid": pid})
	}
	media, err := json.Marshal(attached)
	if err != nil {
		return PageBundle{}, err
	}
	form := url.Values{}
	form.Set("message", post.Caption)
	form.Set("attached_media", string(media))
	form.Set("access_token", sec.Plaintext)
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.PostForm(ctx, "/"+page+"/feed", form)
	})
	if err != nil {
		return PageBundle{}, err
	}
	postID, err := graph.ID(doc)
	if err != nil {
		return PageBundle{}, err
	}
	bundle.PhotoPostID = postID
	s.log.Infow("page bundle published", "tenant", t.ID, "videos", len(bundle.VideoIDs), "photos", len(bundle.PhotoIDs))
	return bundle, nil
}
