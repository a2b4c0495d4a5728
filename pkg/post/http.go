package post

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/posts", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/posts/{id}", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/posts/{id}/items/{itemID}", h.handleEdit).Methods(http.MethodPatch)
	router.HandleFunc("/posts/{id}/items/{itemID}/ready", h.handleMarkReady).Methods(http.MethodPost)
	router.HandleFunc("/posts/{id}/archive", h.handleArchive).Methods(http.MethodPost)
}

type statusResponse struct {
	*Post
	OverallStatus string `json:"overall_status"`
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(statusResponse{Post: p, OverallStatus: p.OverallStatus()})
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Post: p, OverallStatus: p.OverallStatus()})
}

func (h *HTTPHandler) handleEdit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.EditContentItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, item, err := h.service.EditContentItem(r.Context(), vars["id"], vars["itemID"], req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"item":           item,
		"version":        p.Version,
		"overall_status": p.OverallStatus(),
	})
}

func (h *HTTPHandler) handleMarkReady(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.MarkReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, item, err := h.service.MarkReady(r.Context(), vars["id"], vars["itemID"], req.Version)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"item":           item,
		"version":        p.Version,
		"overall_status": p.OverallStatus(),
	})
}

func (h *HTTPHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.MarkReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.Archive(r.Context(), vars["id"], req.Version)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Post: p, OverallStatus: p.OverallStatus()})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrConcurrentModification):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrArchived), errors.Is(err, ErrNotTerminal), errors.Is(err, ErrDuplicatePair):
		http.Error(w, err.Error(), http.StatusConflict)
	case channel.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Log.WithError(err).Error("post handler failure")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
