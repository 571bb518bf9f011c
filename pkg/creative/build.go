// pkg/creative/build.go
package creative

// Build validates a shape and produces its object_story_spec payload. It is a
// pure function: same inputs, same payload, no I/O, no shared state between
// variants.
func Build(s Shape, meta Metadata) (Payload, error) {
	switch v := s.(type) {
	case SingleImage:
		return buildSingleImage(v, meta)
	case SingleVideo:
		return buildSingleVideo(v, meta)
	case ImageCarousel:
		return buildImageCarousel(v, meta)
	case MixedCarousel:
		return buildMixedCarousel(v, meta)
	default:
		return Payload{}, validationf("unknown shape %T", s)
	}
}

func buildSingleImage(v SingleImage, meta Metadata) (Payload, error) {
	if v.ImageHash == "" {
		return Payload{}, validationf("single image requires exactly one image hash")
	}
	return Payload{
		ObjectStorySpec: map[string]any{
			"page_id":           meta.PageID,
			"instagram_user_id": meta.InstagramActorID,
			"link_data": map[string]any{
				"image_hash": v.ImageHash,
				"link":       meta.Links.resolve(""),
			},
		},
	}, nil
}

func buildSingleVideo(v SingleVideo, meta Metadata) (Payload, error) {
	if v.VideoID == "" {
		return Payload{}, validationf("single video requires a video id")
	}
	videoData := map[string]any{"video_id": v.VideoID}
	var warnings []string
	switch {
	case v.ThumbnailURL != "":
		videoData["image_url"] = v.ThumbnailURL
	case v.ThumbnailHash != "":
		videoData["image_hash"] = v.ThumbnailHash
	default:
		// The platform wants a thumbnail here; callers have historically been
		// allowed through without one, so this stays a warning.
		warnings = append(warnings, "single video has no thumbnail reference")
	}
	return Payload{
		ObjectStorySpec: map[string]any{
			"page_id":           meta.PageID,
			"instagram_user_id": meta.InstagramActorID,
			"video_data":        videoData,
		},
		Warnings: warnings,
	}, nil
}

func buildImageCarousel(v ImageCarousel, meta Metadata) (Payload, error) {
	if err := checkCardinality(len(v.Cards)); err != nil {
		return Payload{}, err
	}
	attachments := make([]map[string]any, 0, len(v.Cards))
	for i, card := range v.Cards {
		if card.VideoID != "" {
			return Payload{}, validationf("card %d: homogeneous carousel accepts image cards only", i+1)
		}
		if card.ImageHash == "" {
			return Payload{}, validationf("card %d: missing image hash", i+1)
		}
		attachments = append(attachments, cardAttachment(card, meta.Links))
	}
	return carouselPayload(v.Cards[0].ImageHash, attachments, meta), nil
}

func buildMixedCarousel(v MixedCarousel, meta Metadata) (Payload, error) {
	if err := checkCardinality(len(v.Cards)); err != nil {
		return Payload{}, err
	}
	attachments := make([]map[string]any, 0, len(v.Cards))
	for i, card := range v.Cards {
		if card.ImageHash == "" {
			if card.VideoID != "" {
				return Payload{}, ErrMissingThumbnail
			}
			return Payload{}, validationf("card %d: missing image hash", i+1)
		}
		attachments = append(attachments, cardAttachment(card, meta.Links))
	}
	return carouselPayload(v.Cards[0].ImageHash, attachments, meta), nil
}

func checkCardinality(n int) error {
	if n < MinCards {
		return validationf("carousel requires at least %d cards, got %d", MinCards, n)
	}
	if n > MaxCards {
		return validationf("carousel supports at most %d cards, got %d", MaxCards, n)
	}
	return nil
}

func cardAttachment(card Card, links Links) map[string]any {
	att := map[string]any{
		"link":       links.resolve(card.Link),
		"image_hash": card.ImageHash,
	}
	if card.Name != "" {
		att["name"] = card.Name
	}
	if card.VideoID != "" {
		att["video_id"] = card.VideoID
	}
	return att
}

func carouselPayload(cover string, attachments []map[string]any, meta Metadata) Payload {
	return Payload{
		ObjectStorySpec: map[string]any{
			"page_id":           meta.PageID,
			"instagram_user_id": meta.InstagramActorID,
			"link_data": map[string]any{
				"link":                  meta.Links.resolve(""),
				"message":               meta.Message,
				"child_attachments":     attachments,
				"multi_share_optimized": false,
				"multi_share_end_card":  false,
			},
		},
		CoverHash: cover,
	}
}
