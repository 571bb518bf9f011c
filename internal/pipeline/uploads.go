// internal/pipeline/uploads.go
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/vault"
)

// Source is one binary asset to upload: either local bytes streamed to the
// platform directly, or an already-hosted public URL the platform fetches
// itself.
type Source struct {
	Name string    // filename, used for the multipart part and content type
	Data io.Reader // local bytes; nil when URL is set
	URL  string    // hosted public URL
}

// UploadImage streams one local image to the account's image library and
// returns its image hash.
func (s *Service) UploadImage(ctx context.Context, run *Run, adset AdSetIndex, src Source) (asset creative.MediaAsset, err error) {
	defer func() { observeStage("upload_image", err) }()
	if err = run.ensure(StateAdSetCreated); err != nil {
		return creative.MediaAsset{}, err
	}
	as, err := run.AdSet(adset)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	asset, err = s.uploadImage(ctx, as.AccountID, sec, src)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	run.advance(StateAssetsUploaded)
	return asset, nil
}

// uploadImage is the run-free core so the carousel pool can call it from
// several goroutines without touching shared run state.
func (s *Service) uploadImage(ctx context.Context, accountID string, sec vault.Secret, src Source) (creative.MediaAsset, error) {
	body, err := io.ReadAll(src.Data)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	params := url.Values{}
	params.Set("access_token", sec.Plaintext)

	start := time.Now()
	doc, err := s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
		return s.client.Upload(ctx, "/"+accountID+"/adimages", "filename", src.Name, bytes.NewReader(body), params)
	})
	uploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return creative.MediaAsset{}, err
	}
	hash, err := graph.Extract(doc, `images.*.hash | [0]`)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	return creative.MediaAsset{Kind: creative.AssetImageHash, RemoteID: hash}, nil
}

// UploadVideo uploads one video. Hosted URLs go to the page video endpoint
// under the page-scoped secret (user fallback applies); local bytes stream to
// the account video library under the user secret.
func (s *Service) UploadVideo(ctx context.Context, run *Run, adset AdSetIndex, src Source) (asset creative.MediaAsset, err error) {
	defer func() { observeStage("upload_video", err) }()
	if err = run.ensure(StateAdSetCreated); err != nil {
		return creative.MediaAsset{}, err
	}
	as, err := run.AdSet(adset)
	if err != nil {
		return creative.MediaAsset{}, err
	}

	var doc map[string]any
	start := time.Now()
	if src.URL != "" {
		var sec vault.Secret
		sec, err = s.pageSecret(ctx, run.Tenant)
		if err != nil {
			return creative.MediaAsset{}, err
		}
		form := url.Values{}
		form.Set("file_url", src.URL)
		form.Set("access_token", sec.Plaintext)
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.PostForm(ctx, "/"+run.Tenant.PageID+"/videos", form)
		})
	} else {
		var sec vault.Secret
		sec, err = s.userSecret(ctx, run.Tenant)
		if err != nil {
			return creative.MediaAsset{}, err
		}
		var body []byte
		body, err = io.ReadAll(src.Data)
		if err != nil {
			return creative.MediaAsset{}, err
		}
		params := url.Values{}
		params.Set("access_token", sec.Plaintext)
		doc, err = s.submit.Do(ctx, func(ctx context.Context) (map[string]any, error) {
			return s.client.Upload(ctx, "/"+as.AccountID+"/advideos", "source", src.Name, bytes.NewReader(body), params)
		})
	}
	uploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return creative.MediaAsset{}, err
	}

	id, err := graph.ID(doc)
	if err != nil {
		return creative.MediaAsset{}, err
	}
	run.advance(StateAssetsUploaded)
	return creative.MediaAsset{Kind: creative.AssetVideoID, RemoteID: id}, nil
}

// UploadImages uploads carousel assets with a bounded worker pool. Results
// land in fixed, pre-allocated slots keyed by ordinal, so card order in the
// final request is stable regardless of completion order.
func (s *Service) UploadImages(ctx context.Context, run *Run, adset AdSetIndex, sources []Source) (assets []creative.MediaAsset, err error) {
	defer func() { observeStage("upload_images", err) }()
	if err = run.ensure(StateAdSetCreated); err != nil {
		return nil, err
	}
	as, err := run.AdSet(adset)
	if err != nil {
		return nil, err
	}
	sec, err := s.userSecret(ctx, run.Tenant)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	assets = make([]creative.MediaAsset, len(sources))
	sem := make(chan struct{}, s.workers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	for i, src := range sources {
		wg.Add(1)
		go func(ordinal int, src Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			// A cancelled run must not report success with empty slots.
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			a, uerr := s.uploadImage(ctx, as.AccountID, sec, src)
			if uerr != nil {
				fail(uerr)
				return
			}
			assets[ordinal] = a
		}(i, src)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	run.advance(StateAssetsUploaded)
	return assets, nil
}
