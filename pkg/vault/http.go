package vault

import (
	"encoding/json"
	"errors"
	"net/http"

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
	router.HandleFunc("/channels/connect", h.handleConnect).Methods(http.MethodPost)
	router.HandleFunc("/channels/callback", h.handleCallback).Methods(http.MethodGet)
	router.HandleFunc("/channels/revoke", h.handleRevoke).Methods(http.MethodPost)
	router.HandleFunc("/channels", h.handleList).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.Channel == "" {
		http.Error(w, "owner_id and channel are required", http.StatusBadRequest)
		return
	}

	authURL, err := h.service.BeginAuthorization(r.Context(), req.OwnerID, req.Channel)
	if err != nil {
		if errors.Is(err, ErrChannelNotConfigured) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to start oauth flow")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"authorization_url": authURL})
}

func (h *HTTPHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "state and code are required", http.StatusBadRequest)
		return
	}

	ownerID, ch, err := h.service.CompleteAuthorization(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, ErrCsrfStateMismatch) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		logger.Log.WithError(err).Error("oauth callback failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"owner_id": ownerID,
		"channel":  ch,
		"status":   "connected",
	})
}

func (h *HTTPHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Revoke(r.Context(), req.OwnerID, req.Channel); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to revoke credential")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	creds, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list credentials")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(creds)
}
