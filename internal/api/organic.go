// internal/api/organic.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stairway/internal/organic"
	"stairway/pkg/middleware"
	"stairway/pkg/storage"
)

// OrganicRoutes mounts container creation and the blocking publish step. The
// post body travels with each request; nothing is parked in process state
// between the two steps. Media bytes go through the public store first; the
// platform only ever fetches URLs.
func OrganicRoutes(r chi.Router, svc *organic.Service, store storage.PublicStore, log *zap.SugaredLogger) {
	r.Post("/v1/media", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		files, err := uploadFiles(req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		f, err := files[0].Open()
		if err != nil {
			writeError(w, log, err)
			return
		}
		defer f.Close()
		name := t.Slug + "/" + uuid.NewString() + "-" + files[0].Filename
		url, err := store.Put(req.Context(), name, f)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"url": url})
	})

	container := func(create func(*http.Request, organic.Post) (organic.ContainerRef, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			var post organic.Post
			if err := decode(req, &post); err != nil {
				writeError(w, log, err)
				return
			}
			ref, err := create(req, post)
			if err != nil {
				writeError(w, log, err)
				return
			}
			writeJSON(w, http.StatusCreated, ref)
		}
	}

	r.Post("/v1/posts/image", container(func(req *http.Request, post organic.Post) (organic.ContainerRef, error) {
		return svc.CreateImageContainer(req.Context(), middleware.TenantFrom(req.Context()), post)
	}))
	r.Post("/v1/posts/video", container(func(req *http.Request, post organic.Post) (organic.ContainerRef, error) {
		return svc.CreateVideoContainer(req.Context(), middleware.TenantFrom(req.Context()), post)
	}))
	r.Post("/v1/posts/carousel", container(func(req *http.Request, post organic.Post) (organic.ContainerRef, error) {
		return svc.CreateCarouselContainer(req.Context(), middleware.TenantFrom(req.Context()), post)
	}))

	// Page posts go live at upload time; there is no container step.
	page := func(publish func(*http.Request, organic.Post) (organic.PageRef, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			var post organic.Post
			if err := decode(req, &post); err != nil {
				writeError(w, log, err)
				return
			}
			ref, err := publish(req, post)
			if err != nil {
				writeError(w, log, err)
				return
			}
			writeJSON(w, http.StatusCreated, ref)
		}
	}

	r.Post("/v1/page-posts/photo", page(func(req *http.Request, post organic.Post) (organic.PageRef, error) {
		return svc.PublishPagePhoto(req.Context(), middleware.TenantFrom(req.Context()), post)
	}))
	r.Post("/v1/page-posts/video", page(func(req *http.Request, post organic.Post) (organic.PageRef, error) {
		return svc.PublishPageVideo(req.Context(), middleware.TenantFrom(req.Context()), post)
	}))
	r.Post("/v1/page-posts/carousel", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			organic.Post
			LinkURL string `json:"link_url,omitempty"`
		}
		if err := decode(req, &body); err != nil {
			writeError(w, log, err)
			return
		}
		ref, err := svc.PublishPageCarousel(req.Context(), middleware.TenantFrom(req.Context()), body.Post, body.LinkURL)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)
	})
	r.Post("/v1/page-posts/bundle", func(w http.ResponseWriter, req *http.Request) {
		var post organic.Post
		if err := decode(req, &post); err != nil {
			writeError(w, log, err)
			return
		}
		bundle, err := svc.PublishPageBundle(req.Context(), middleware.TenantFrom(req.Context()), post)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, bundle)
	})

	r.Post("/v1/posts/{container}/publish", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		ref, err := svc.WaitAndPublish(req.Context(), t, chi.URLParam(req, "container"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ref)
	})
}
