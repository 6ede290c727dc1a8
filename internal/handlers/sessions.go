package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/radouane/scanner/internal/session"
)

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.factory.New()
	h.sessionStore.Set(sess)
	h.logger.Info("Session created", "session_id", sess.ID)
	h.writeJSONStatus(w, http.StatusCreated, sess.View())
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()
	views := make([]session.View, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	h.writeJSON(w, views)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, sess.View())
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.sessionStore.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Scan.SetCategory(request.Category); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, sess.View())
}

func (h *Handler) HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Scan.SetLanguage(request.Language); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, sess.View())
}

// HandleAnalyze dispatches an analysis. With ?wait=true it blocks until the analysis resolves
// or the client goes away; otherwise it answers 202 and progress is streamed over the socket.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	done, err := sess.Scan.Analyze(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		h.writeJSONStatus(w, http.StatusAccepted, sess.View())
		return
	}

	select {
	case <-done:
	case <-r.Context().Done():
		return
	}
	view := sess.View()
	if view.Scan.Error != nil {
		h.writeJSONStatus(w, view.Scan.Error.HTTPStatus(), view)
		return
	}
	h.writeJSON(w, view)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	sess.Reset()
	h.writeJSON(w, sess.View())
}
