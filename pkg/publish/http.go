package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/gorilla/mux"
)

// Scheduling is delegated back to the post service; the handler needs just
// this slice of it.
type ScheduleStore interface {
	Schedule(ctx context.Context, postID string, at time.Time, expectedVersion int64) (*post.Post, error)
}

type HTTPHandler struct {
	coordinator *Coordinator
	schedules   ScheduleStore
}

func NewHTTPHandler(coordinator *Coordinator, schedules ScheduleStore) *HTTPHandler {
	return &HTTPHandler{coordinator: coordinator, schedules: schedules}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/posts/{id}/publish", h.handlePublish).Methods(http.MethodPost)
	router.HandleFunc("/posts/{id}/publish/cancel", h.handleCancel).Methods(http.MethodPost)
}

func (h *HTTPHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.PublishRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	// A future scheduled_at defers the same publish operation instead of
	// running it now.
	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		p, err := h.schedules.Schedule(r.Context(), id, *req.ScheduledAt, 0)
		if err != nil {
			writePublishError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"post_id":      p.ID,
			"scheduled_at": p.ScheduledAt,
		})
		return
	}

	summary, err := h.coordinator.Publish(r.Context(), id)
	if err != nil {
		writePublishError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *HTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	cancelled, err := h.coordinator.CancelScheduled(r.Context(), id)
	if err != nil {
		writePublishError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post_id":   id,
		"cancelled": cancelled,
	})
}

func writePublishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, post.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrPublishInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, post.ErrArchived), errors.Is(err, post.ErrConcurrentModification):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.WithError(err).Error("publish handler failure")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
