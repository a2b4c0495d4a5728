package content

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	orchestrator *Orchestrator
}

func NewHTTPHandler(orchestrator *Orchestrator) *HTTPHandler {
	return &HTTPHandler{orchestrator: orchestrator}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/generate", h.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/posts/{id}/generate", h.handleGenerate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, results, err := h.orchestrator.Start(r.Context(), req)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post_id":        p.ID,
		"version":        p.Version,
		"overall_status": p.OverallStatus(),
		"results":        results,
	})
}

func (h *HTTPHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Pairs []models.Pair `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, results, err := h.orchestrator.Generate(r.Context(), id, req.Pairs)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post_id":        p.ID,
		"version":        p.Version,
		"overall_status": p.OverallStatus(),
		"results":        results,
	})
}

func writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoPairs), errors.Is(err, ErrDuplicatePair):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case channel.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, post.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error("content generation failure")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
