package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// HandlePreview resolves a display reference. Revoked references are gone for good.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := h.previews.Open(chi.URLParam(r, "ref"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Unable to write preview", "err", err)
	}
}
