package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/scanerr"
)

// EventKind identifies a camera session event.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventFocusAck EventKind = "focus_ack"
	EventCaptured EventKind = "captured"
	EventClosed   EventKind = "closed"
	EventFailed   EventKind = "failed"
)

// Event is emitted on every camera state change and on each focus tap.
type Event struct {
	Kind      EventKind      `json:"kind"`
	State     State          `json:"state"`
	FocusMode FocusMode      `json:"focusMode,omitempty"`
	Point     *Point         `json:"point,omitempty"`
	Applied   bool           `json:"applied,omitempty"`
	Error     *scanerr.Error `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// FocusResult describes what a focus tap did. The tap is acknowledged whether or not a
// constraint applied.
type FocusResult struct {
	Mode    FocusMode `json:"mode"`
	Applied bool      `json:"applied"`
	Point   Point     `json:"point"`
}

// session is one open device binding.
type session struct {
	stream    Stream
	focusMode FocusMode
	modes     []FocusMode
	stopOnce  sync.Once
}

// stop stops every acquired track exactly once.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		for _, track := range s.stream.Tracks() {
			track.Stop()
		}
	})
}

// Manager drives the Closed -> Opening -> Live -> Closed camera lifecycle.
// At most one session is open at a time.
type Manager struct {
	device      Device
	facing      Facing
	jpegQuality int
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	gen        uint64
	session    *session
	cancelOpen context.CancelFunc

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewManager creates a manager for device. A nil logger uses slog.Default().
func NewManager(device Device, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		device:      device,
		facing:      FacingRear,
		jpegQuality: 90,
		logger:      logger,
		state:       StateClosed,
		subscribers: make(map[chan Event]struct{}),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FocusMode returns the negotiated focus mode of the live session.
func (m *Manager) FocusMode() FocusMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return FocusNone
	}
	return m.session.focusMode
}

// HasStream reports whether a device stream is currently referenced.
func (m *Manager) HasStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Open acquires a rear-facing stream. Acquisition failures return the manager to Closed with
// a classified error and are never retried.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateClosed {
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	openCtx, cancel := context.WithCancel(ctx)
	m.gen++
	gen := m.gen
	m.state = StateOpening
	m.cancelOpen = cancel
	m.mu.Unlock()

	stream, err := m.device.Acquire(openCtx, m.facing)

	m.mu.Lock()
	closedWhileOpening := m.gen != gen || m.state != StateOpening
	if !closedWhileOpening {
		m.cancelOpen = nil
	}
	cancel()

	if err != nil {
		if !closedWhileOpening {
			m.state = StateClosed
		}
		m.mu.Unlock()
		if stream != nil {
			(&session{stream: stream}).stop()
		}
		if closedWhileOpening {
			return ErrClosed
		}
		classified := classify(err)
		m.logger.Warn("Camera acquisition failed", "kind", classified.Kind, "err", err)
		m.emit(Event{Kind: EventFailed, State: StateClosed, Error: classified})
		return classified
	}

	sess := &session{stream: stream}
	if closedWhileOpening {
		m.mu.Unlock()
		sess.stop()
		return ErrClosed
	}
	m.session = sess
	m.state = StateLive
	m.mu.Unlock()

	m.negotiateFocus(ctx, sess)
	m.logger.Info("Camera session opened", "focus_mode", sess.focusMode)
	m.emit(Event{Kind: EventOpened, State: StateLive, FocusMode: sess.focusMode})
	return nil
}

// negotiateFocus queries capabilities once and prefers continuous focus for the live preview.
func (m *Manager) negotiateFocus(ctx context.Context, sess *session) {
	modes, err := sess.stream.FocusModes(ctx)
	if err != nil {
		m.logger.Debug("Focus capabilities unavailable", "err", err)
		return
	}
	m.mu.Lock()
	sess.modes = modes
	m.mu.Unlock()

	if !supports(modes, FocusContinuous) {
		return
	}
	if err := sess.stream.ApplyFocus(ctx, FocusContinuous, nil); err != nil {
		m.logger.Debug("Continuous focus not applied", "err", err)
		return
	}
	m.mu.Lock()
	sess.focusMode = FocusContinuous
	m.mu.Unlock()
}

// FocusAt applies a best-effort focus at p: single-shot when supported, else continuous,
// else nothing. It always emits a focus acknowledgement and never fails on the constraint.
func (m *Manager) FocusAt(ctx context.Context, p Point) (FocusResult, error) {
	p = p.Clamped()

	m.mu.Lock()
	if m.state != StateLive || m.session == nil {
		m.mu.Unlock()
		return FocusResult{}, ErrNotLive
	}
	sess := m.session
	mode := selectFocusMode(sess.modes)
	m.mu.Unlock()

	result := FocusResult{Mode: mode, Point: p}
	if mode != FocusNone {
		if err := sess.stream.ApplyFocus(ctx, mode, &p); err != nil {
			m.logger.Debug("Focus constraint not applied", "mode", mode, "err", err)
		} else {
			result.Applied = true
			m.mu.Lock()
			sess.focusMode = mode
			m.mu.Unlock()
		}
	}

	m.emit(Event{Kind: EventFocusAck, State: StateLive, FocusMode: mode, Point: &p, Applied: result.Applied})
	return result, nil
}

// Capture snapshots the live frame, encodes it as JPEG and closes the session. The hardware
// tracks are stopped before Capture returns, including when encoding fails.
func (m *Manager) Capture(ctx context.Context) (*imageasset.Frame, error) {
	m.mu.Lock()
	if m.state != StateLive || m.session == nil {
		m.mu.Unlock()
		return nil, ErrNotLive
	}
	sess := m.session
	m.session = nil
	m.state = StateClosed
	m.mu.Unlock()

	frame, err := m.snapshot(ctx, sess)
	sess.stop()

	if err != nil {
		classified := scanerr.DeviceAccessFailed("failed to capture frame", err)
		m.logger.Error("Camera capture failed", "err", err)
		m.emit(Event{Kind: EventFailed, State: StateClosed, Error: classified})
		return nil, classified
	}

	m.logger.Info("Camera frame captured", "bytes", len(frame.Data), "width", frame.Width, "height", frame.Height)
	m.emit(Event{Kind: EventCaptured, State: StateClosed})
	return frame, nil
}

func (m *Manager) snapshot(ctx context.Context, sess *session) (*imageasset.Frame, error) {
	img, err := sess.stream.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to draw frame: %w", err)
	}
	if img == nil {
		return nil, errors.New("device returned an empty frame")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: m.jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	bounds := img.Bounds()
	return &imageasset.Frame{
		Data:       buf.Bytes(),
		MIMEType:   "image/jpeg",
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now(),
	}, nil
}

// Close cancels the session. Closing while Opening aborts the acquisition; closing while
// Closed is a no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	switch m.state {
	case StateOpening:
		if m.cancelOpen != nil {
			m.cancelOpen()
			m.cancelOpen = nil
		}
		m.gen++
		m.state = StateClosed
		m.mu.Unlock()
		m.emit(Event{Kind: EventClosed, State: StateClosed})
	case StateLive:
		sess := m.session
		m.session = nil
		m.state = StateClosed
		m.mu.Unlock()
		sess.stop()
		m.logger.Info("Camera session closed")
		m.emit(Event{Kind: EventClosed, State: StateClosed})
	default:
		m.mu.Unlock()
	}
}

// Subscribe returns a channel receiving camera events. Slow subscribers miss events.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for sub := range m.subscribers {
		if sub == ch {
			delete(m.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (m *Manager) emit(ev Event) {
	ev.At = time.Now()
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for sub := range m.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

func classify(err error) *scanerr.Error {
	if kind := scanerr.KindOf(err); kind != "" {
		return scanerr.As(err)
	}
	switch {
	case errors.Is(err, ErrPermission):
		return scanerr.PermissionDenied("camera access was denied", err)
	case errors.Is(err, ErrNoDevice):
		return scanerr.DeviceNotFound("no compatible camera was found", err)
	default:
		return scanerr.DeviceAccessFailed("could not access the camera", err)
	}
}
