package handlers

import (
	"context"
	"net/http"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/scan"
	"github.com/radouane/scanner/internal/session"
)

// Event types pushed over the session socket.
const (
	EventSession = "session"
	EventScan    = "scan"
	EventCamera  = "camera"
)

type socketMessage struct {
	Type    string         `json:"type"`
	Session *session.View  `json:"session,omitempty"`
	Scan    *scan.Snapshot `json:"scan,omitempty"`
	Camera  *capture.Event `json:"camera,omitempty"`
}

// HandleEvents streams orchestrator transitions and camera events for one session.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Unable to upgrade to websocket", "session_id", sess.ID, "err", err)
		return
	}
	defer conn.Close()

	snapshots := sess.Scan.Subscribe()
	defer sess.Scan.Unsubscribe(snapshots)
	events := sess.Camera.Subscribe()
	defer sess.Camera.Unsubscribe(events)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close messages are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	view := sess.View()
	if err := conn.WriteJSON(socketMessage{Type: EventSession, Session: &view}); err != nil {
		return
	}

	for {
		var msg socketMessage
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			msg = socketMessage{Type: EventScan, Scan: &snap}
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg = socketMessage{Type: EventCamera, Camera: &ev}
		}
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("Websocket client went away", "session_id", sess.ID, "err", err)
			return
		}
	}
}
