package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (h *Handler) HandleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.credentials.Status())
}

func (h *Handler) HandleSetCredential(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(request.Token) == "" {
		h.writeError(w, "token is required", http.StatusBadRequest)
		return
	}
	if err := h.credentials.Set(request.Token); err != nil {
		h.writeError(w, "Failed to save credential: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, h.credentials.Status())
}

func (h *Handler) HandleClearCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Clear(); err != nil {
		h.writeError(w, "Failed to clear credential: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, h.credentials.Status())
}
