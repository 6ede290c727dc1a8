package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/session"
)

type uploadResponse struct {
	Session session.View `json:"session"`
	Source  string       `json:"source"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	// Check if this is a JSON request with image URL
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		h.handleURLUpload(w, r, sess)
		return
	}

	h.handleFileUpload(w, r, sess)
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := readLimited(file, h.maxBytes)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	var src imageasset.Source
	switch r.FormValue("source") {
	case "", string(imageasset.SourcePicker):
		src = imageasset.FromFile(header.Filename, header.Header.Get("Content-Type"), data)
	case string(imageasset.SourceDrop):
		src = imageasset.FromDrop(header.Filename, header.Header.Get("Content-Type"), data)
	default:
		h.writeError(w, "Invalid source. Must be 'picker' or 'drop'", http.StatusBadRequest)
		return
	}

	if _, err := sess.SelectImage(src); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, uploadResponse{Session: sess.View(), Source: string(src.Kind)})
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !h.allowURL {
		h.writeError(w, "URL uploads are disabled", http.StatusForbidden)
		return
	}

	var request struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	data, mimeType, err := h.downloadImage(r.Context(), request.ImageURL)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if _, err := sess.SelectImage(imageasset.FromFile(filenameFromURL(request.ImageURL), mimeType, data)); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.logger.Info("Image selected from URL", "session_id", sess.ID, "url", request.ImageURL)
	h.writeJSON(w, uploadResponse{Session: sess.View(), Source: "url"})
}

func (h *Handler) HandleClearImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	sess.ClearImage()
	h.writeJSON(w, sess.View())
}
