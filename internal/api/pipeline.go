// internal/api/pipeline.go
package api

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stairway/internal/pipeline"
	"stairway/pkg/creative"
	"stairway/pkg/middleware"
)

const maxUploadMemory = 32 << 20

type cardBody struct {
	Name      string `json:"name,omitempty"`
	Link      string `json:"link,omitempty"`
	ImageHash string `json:"image_hash,omitempty"`
	VideoID   string `json:"video_id,omitempty"`
}

// shapeBody is the wire form of a creative shape. Kind selects the variant;
// the remaining fields are variant-specific.
type shapeBody struct {
	Kind          string     `json:"kind"`
	ImageHash     string     `json:"image_hash,omitempty"`
	VideoID       string     `json:"video_id,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	ThumbnailHash string     `json:"thumbnail_hash,omitempty"`
	Cards         []cardBody `json:"cards,omitempty"`
}

func (b shapeBody) toShape() (creative.Shape, error) {
	cards := make([]creative.Card, 0, len(b.Cards))
	for _, c := range b.Cards {
		cards = append(cards, creative.Card{
			Name:      c.Name,
			Link:      c.Link,
			ImageHash: c.ImageHash,
			VideoID:   c.VideoID,
		})
	}
	switch strings.ToLower(strings.TrimSpace(b.Kind)) {
	case "single_image":
		return creative.SingleImage{ImageHash: b.ImageHash}, nil
	case "single_video":
		return creative.SingleVideo{VideoID: b.VideoID, ThumbnailURL: b.ThumbnailURL, ThumbnailHash: b.ThumbnailHash}, nil
	case "image_carousel":
		return creative.ImageCarousel{Cards: cards}, nil
	case "mixed_carousel":
		return creative.MixedCarousel{Cards: cards}, nil
	}
	return nil, &creative.ValidationError{Msg: "unknown shape kind: " + b.Kind}
}

// PipelineRoutes mounts the paid provisioning chain. Every stage addresses a
// run by id; the registry serializes stages within a run.
func PipelineRoutes(r chi.Router, svc *pipeline.Service, reg *Registry, log *zap.SugaredLogger) {
	r.Post("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		id := reg.Create(t, svc.NewRun(t))
		writeJSON(w, http.StatusCreated, map[string]any{"run_id": id})
	})

	r.Get("/v1/runs/{run}", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		var snap pipeline.Snapshot
		err := reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			snap = run.Snapshot()
			return nil
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Delete("/v1/runs/{run}", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		if err := reg.Delete(t.ID, chi.URLParam(req, "run")); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/v1/runs/{run}/accounts", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		var accounts []pipeline.AccountRef
		err := reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			var derr error
			accounts, derr = svc.DiscoverAccounts(req.Context(), run)
			return derr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	})

	r.Post("/v1/runs/{run}/campaigns", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		var body struct {
			AccountIndex int    `json:"account_index"`
			Name         string `json:"name"`
			Objective    string `json:"objective"`
			Status       string `json:"status"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		var ref *pipeline.CampaignRef
		err := reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			var cerr error
			ref, cerr = svc.CreateCampaign(req.Context(), run, pipeline.AccountIndex(body.AccountIndex), body.Name, body.Objective, body.Status)
			return cerr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)
	})

	r.Post("/v1/runs/{run}/adsets", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		var body struct {
			CampaignIndex int    `json:"campaign_index"`
			Status        string `json:"status"`
			Profile       string `json:"profile"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		var ref *pipeline.AdSetRef
		err := reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			var cerr error
			ref, cerr = svc.CreateAdSet(req.Context(), run, pipeline.CampaignIndex(body.CampaignIndex), body.Status, body.Profile)
			return cerr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)
	})

	r.Patch("/v1/runs/{run}/adsets/{ordinal}", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ordinal, err := adsetOrdinal(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		var body struct {
			DailyBudget *int    `json:"daily_budget,omitempty"`
			Title       *string `json:"title,omitempty"`
			Link        *string `json:"link,omitempty"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		var ref pipeline.AdSetRef
		err = reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			if body.DailyBudget != nil {
				if err := run.SetBudget(ordinal, *body.DailyBudget); err != nil {
					return err
				}
			}
			if body.Title != nil {
				if err := run.SetTitle(ordinal, *body.Title); err != nil {
					return err
				}
			}
			if body.Link != nil {
				if err := run.SetLink(ordinal, *body.Link); err != nil {
					return err
				}
			}
			as, aerr := run.AdSet(ordinal)
			if aerr != nil {
				return aerr
			}
			ref = *as
			return nil
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ref)
	})

	r.Post("/v1/runs/{run}/adsets/{ordinal}/images", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ordinal, err := adsetOrdinal(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		files, err := uploadFiles(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		var assets []creative.MediaAsset
		err = reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			sources, oerr := openSources(files)
			if oerr != nil {
				return oerr
			}
			defer closeSources(sources)
			if len(sources) == 1 {
				asset, uerr := svc.UploadImage(req.Context(), run, ordinal, sources[0])
				if uerr != nil {
					return uerr
				}
				assets = []creative.MediaAsset{asset}
				return nil
			}
			var uerr error
			assets, uerr = svc.UploadImages(req.Context(), run, ordinal, sources)
			return uerr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assets": assetViews(assets)})
	})

	r.Post("/v1/runs/{run}/adsets/{ordinal}/videos", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ordinal, err := adsetOrdinal(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		src, cleanup, err := videoSource(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		defer cleanup()
		var asset creative.MediaAsset
		err = reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			var uerr error
			asset, uerr = svc.UploadVideo(req.Context(), run, ordinal, src)
			return uerr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, assetView(asset))
	})

	r.Post("/v1/runs/{run}/adsets/{ordinal}/ads", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ordinal, err := adsetOrdinal(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		var body struct {
			Name    string    `json:"name"`
			Message string    `json:"message"`
			Link    string    `json:"link"`
			Status  string    `json:"status"`
			Shape   shapeBody `json:"shape"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		shape, err := body.Shape.toShape()
		if err != nil {
			writeError(w, log, err)
			return
		}
		var ref *pipeline.AdRef
		err = reg.With(t.ID, chi.URLParam(req, "run"), func(run *pipeline.Run) error {
			var cerr error
			ref, cerr = svc.CreateAd(req.Context(), run, ordinal, shape, pipeline.AdMetadata{
				Name:    body.Name,
				Message: body.Message,
				Link:    body.Link,
			}, body.Status)
			return cerr
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)
	})
}

func adsetOrdinal(req *http.Request) (pipeline.AdSetIndex, error) {
	n, err := strconv.Atoi(chi.URLParam(req, "ordinal"))
	if err != nil {
		return 0, &creative.ValidationError{Msg: "ordinal must be an integer"}
	}
	return pipeline.AdSetIndex(n), nil
}

func uploadFiles(req *http.Request) ([]*multipart.FileHeader, error) {
	if err := req.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, &creative.ValidationError{Msg: "expected multipart form: " + err.Error()}
	}
	files := req.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, &creative.ValidationError{Msg: "no file parts in request"}
	}
	return files, nil
}

func openSources(files []*multipart.FileHeader) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeSources(sources)
			return nil, err
		}
		sources = append(sources, pipeline.Source{Name: fh.Filename, Data: f})
	}
	return sources, nil
}

func closeSources(sources []pipeline.Source) {
	for _, s := range sources {
		if c, ok := s.Data.(multipart.File); ok {
			_ = c.Close()
		}
	}
}

// videoSource accepts either a multipart file part or a JSON body carrying a
// hosted file_url.
func videoSource(req *http.Request) (pipeline.Source, func(), error) {
	noop := func() {}
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		files, err := uploadFiles(req)
		if err != nil {
			return pipeline.Source{}, noop, err
		}
		f, err := files[0].Open()
		if err != nil {
			return pipeline.Source{}, noop, err
		}
		return pipeline.Source{Name: files[0].Filename, Data: f}, func() { _ = f.Close() }, nil
	}
	var body struct {
		FileURL string `json:"file_url"`
	}
	if err := decode(req, &body); err != nil {
		return pipeline.Source{}, noop, err
	}
	if strings.TrimSpace(body.FileURL) == "" {
		return pipeline.Source{}, noop, &creative.ValidationError{Msg: "file_url not set"}
	}
	return pipeline.Source{URL: body.FileURL}, noop, nil
}

func assetView(a creative.MediaAsset) map[string]any {
	return map[string]any{"kind": string(a.Kind), "id": a.RemoteID}
}

func assetViews(assets []creative.MediaAsset) []map[string]any {
	out := make([]map[string]any, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetView(a))
	}
	return out
}
