package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/credentials"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/scan"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/session"
	"github.com/radouane/scanner/internal/storage"
)

// CredentialStore is the credential collaborator as seen by the settings endpoints.
type CredentialStore interface {
	Status() credentials.Status
	Set(token string) error
	Clear() error
}

// Config holds the handler dependencies.
type Config struct {
	Factory     *session.Factory
	Credentials CredentialStore
	// StaticDir is served at / for a rendering collaborator. Empty disables it.
	StaticDir string
	// AllowURLUpload enables the image_url upload path.
	AllowURLUpload bool
	// AllowedOrigins may open the event socket besides the serving origin. "*" allows any.
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Handler struct {
	sessionStore *storage.SessionStore
	factory      *session.Factory
	previews     *imageasset.PreviewStore
	credentials  CredentialStore
	staticDir    string
	allowURL     bool
	maxBytes     int64
	origins      map[string]bool
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.Factory.MaxBytes
	if maxBytes <= 0 {
		maxBytes = imageasset.DefaultMaxBytes
	}
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}
	h := &Handler{
		sessionStore: storage.New(),
		factory:      cfg.Factory,
		previews:     cfg.Factory.Previews,
		credentials:  cfg.Credentials,
		staticDir:    cfg.StaticDir,
		allowURL:     cfg.AllowURLUpload,
		maxBytes:     maxBytes,
		origins:      origins,
		logger:       logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts clients without an Origin header, the serving origin and configured
// origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins["*"] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if h.origins[strings.TrimSuffix(strings.ToLower(origin), "/")] {
		return true
	}
	h.logger.Warn("Rejected event socket origin", "origin", origin)
	return false
}

// Routes returns the HTTP API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)

	r.Get("/healthcheck", h.HandleHealthcheck)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreateSession)
		r.Get("/", h.HandleListSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleGetSession)
			r.Delete("/", h.HandleDeleteSession)

			r.Post("/image", h.HandleUpload)
			r.Delete("/image", h.HandleClearImage)
			r.Put("/category", h.HandleSetCategory)
			r.Put("/language", h.HandleSetLanguage)
			r.Post("/analyze", h.HandleAnalyze)
			r.Post("/reset", h.HandleReset)

			r.Post("/camera/open", h.HandleCameraOpen)
			r.Post("/camera/focus", h.HandleCameraFocus)
			r.Post("/camera/capture", h.HandleCameraCapture)
			r.Post("/camera/close", h.HandleCameraClose)
		})
	})

	r.Get("/ws/sessions/{sessionID}", h.HandleEvents)
	r.Get(imageasset.PreviewPath+"{ref}", h.HandlePreview)

	r.Get("/api/credential", h.HandleCredentialStatus)
	r.Put("/api/credential", h.HandleSetCredential)
	r.Delete("/api/credential", h.HandleClearCredential)

	if h.staticDir != "" {
		r.Get("/*", h.HandleStatic)
	}

	return r
}

// corsMiddleware answers preflights before routing, so mounted subrouters need no OPTIONS routes.
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close closes every session.
func (h *Handler) Close() {
	h.sessionStore.CloseAll()
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("Unable to write healthcheck", "err", err)
	}
}

const allowedMethods = "GET, POST, PUT, DELETE"

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
	}
}

type errorBody struct {
	Error string       `json:"error"`
	Kind  scanerr.Kind `json:"kind,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	h.logger.Error(message, "status", code)
	h.writeJSONStatus(w, code, errorBody{Error: message})
}

// writeFailure maps classified errors and state-machine misuse onto status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var classified *scanerr.Error
	switch {
	case errors.As(err, &classified):
		h.logger.Warn("Request failed", "kind", classified.Kind, "err", err)
		h.writeJSONStatus(w, classified.HTTPStatus(), errorBody{Error: classified.Message, Kind: classified.Kind})
	case errors.Is(err, scan.ErrAnalysisInFlight),
		errors.Is(err, scan.ErrAlreadyResolved),
		errors.Is(err, capture.ErrAlreadyOpen),
		errors.Is(err, capture.ErrNotLive),
		errors.Is(err, capture.ErrClosed):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scan.ErrUnknownCategory), errors.Is(err, scan.ErrUnknownLanguage):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, exists := h.sessionStore.Get(chi.URLParam(r, "sessionID"))
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
