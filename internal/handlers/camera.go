package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/session"
)

type focusResponse struct {
	Focus  capture.FocusResult `json:"focus"`
	Camera session.CameraView  `json:"camera"`
}

func (h *Handler) HandleCameraOpen(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if err := sess.Camera.Open(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, sess.View())
}

// HandleCameraFocus takes a tap position normalized to the preview, {"x":0..1,"y":0..1}.
func (h *Handler) HandleCameraFocus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var p capture.Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := sess.Camera.FocusAt(r.Context(), p)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, focusResponse{Focus: result, Camera: sess.View().Camera})
}

func (h *Handler) HandleCameraCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if _, err := sess.CaptureImage(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, uploadResponse{Session: sess.View(), Source: "camera"})
}

func (h *Handler) HandleCameraClose(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	sess.Camera.Close()
	h.writeJSON(w, sess.View())
}
