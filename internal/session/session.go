// Package session bundles the per-client workspace: the image normalizer, the camera manager
// and the analysis orchestrator, wired so that every image path ends in the orchestrator.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/providers"
	"github.com/radouane/scanner/internal/scan"
)

// Session is one client's scanning workspace.
type Session struct {
	ID        string
	CreatedAt time.Time

	Images *imageasset.Normalizer
	Camera *capture.Manager
	Scan   *scan.Orchestrator

	logger *slog.Logger
}

// CameraView is the presentation view of the camera manager.
type CameraView struct {
	State     capture.State     `json:"state"`
	FocusMode capture.FocusMode `json:"focusMode,omitempty"`
}

// View is the full presentation view of a session.
type View struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Scan      scan.Snapshot `json:"scan"`
	Camera    CameraView    `json:"camera"`
}

// Factory creates sessions sharing one preview store, device, provider and credential source.
type Factory struct {
	Previews    *imageasset.PreviewStore
	MaxBytes    int64
	Device      capture.Device
	Analyzer    providers.Analyzer
	Credentials scan.Credentials
	Options     scan.Options
	Logger      *slog.Logger
}

// New creates a session with a fresh id.
func (f *Factory) New() *Session {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session_id", id)

	opts := f.Options
	opts.Logger = logger
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Images:    imageasset.NewNormalizer(f.Previews, f.MaxBytes, logger),
		Camera:    capture.NewManager(f.Device, logger),
		Scan:      scan.New(f.Analyzer, f.Credentials, opts),
		logger:    logger,
	}
}

// SelectImage normalizes src and hands the resulting asset to the orchestrator.
// Invalid sources leave the current selection untouched.
func (s *Session) SelectImage(src imageasset.Source) (*imageasset.Asset, error) {
	asset, err := s.Images.Normalize(src)
	if err != nil {
		s.logger.Warn("Image rejected", "source", src.Kind, "err", err)
		return nil, err
	}
	s.Scan.SelectImage(asset)
	return asset, nil
}

// ClearImage deselects the image and returns the orchestrator to Idle.
func (s *Session) ClearImage() {
	s.Scan.SelectImage(nil)
	s.Images.Clear()
}

// CaptureImage captures a frame from the live camera and selects it.
func (s *Session) CaptureImage(ctx context.Context) (*imageasset.Asset, error) {
	frame, err := s.Camera.Capture(ctx)
	if err != nil {
		return nil, err
	}
	asset, err := s.SelectImage(imageasset.FromFrame(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize captured frame: %w", err)
	}
	return asset, nil
}

// Reset starts a new scan, discarding the image and any result.
func (s *Session) Reset() {
	s.Scan.Reset()
	s.Images.Clear()
}

// Close releases the camera and every display reference held by the session.
func (s *Session) Close() {
	s.Camera.Close()
	s.Reset()
	s.logger.Debug("Session closed")
}

// View returns the presentation view.
func (s *Session) View() View {
	return View{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Scan:      s.Scan.Snapshot(),
		Camera: CameraView{
			State:     s.Camera.State(),
			FocusMode: s.Camera.FocusMode(),
		},
	}
}
