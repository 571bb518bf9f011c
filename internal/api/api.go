// internal/api/api.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"stairway/internal/pipeline"
	"stairway/pkg/creative"
	"stairway/pkg/graph"
	"stairway/pkg/poll"
	"stairway/pkg/problems"
	"stairway/pkg/vault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, slug, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problems.Type(slug),
		"title":  title,
		"status": status,
		"detail": detail,
	})
}

// writeError maps component errors onto problem responses by kind. Remote
// failures split on transience: transient ones are the upstream's fault
// (bad gateway), permanent ones mean the submitted request can never succeed.
func writeError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	var verr *creative.ValidationError
	var rerr *graph.RemoteError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, http.StatusUnprocessableEntity, "validation", "Invalid request", verr.Msg)
	case errors.Is(err, vault.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "no-active-secret", "No active secret", "No active credential is stored for the requested owner")
	case errors.Is(err, ErrRunNotFound), errors.Is(err, pipeline.ErrUnknownOrdinal):
		writeProblem(w, http.StatusNotFound, "not-found", "Not found", err.Error())
	case errors.Is(err, pipeline.ErrStageOrder):
		writeProblem(w, http.StatusConflict, "stage-order", "Stage out of order", err.Error())
	case errors.Is(err, poll.ErrTimeout):
		writeProblem(w, http.StatusGatewayTimeout, "processing-timeout", "Media not ready", "The media did not finish processing within the attempt budget")
	case errors.Is(err, poll.ErrProcessingFailed):
		writeProblem(w, http.StatusBadGateway, "processing-failed", "Media failed to process", "The platform reported a terminal processing error")
	case errors.As(err, &rerr):
		if rerr.Transient {
			writeProblem(w, http.StatusBadGateway, "upstream-transient", "Upstream error", rerr.Message)
		} else {
			writeProblem(w, http.StatusBadRequest, "upstream-rejected", "Request rejected upstream", rerr.Message)
		}
	default:
		log.Errorw("unhandled error", "err", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "Internal error", "An unexpected error occurred")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &creative.ValidationError{Msg: "malformed request body: " + err.Error()}
	}
	return nil
}
