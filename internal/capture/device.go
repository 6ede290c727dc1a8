// Package capture owns the camera hardware session: acquisition, live preview, tap-to-focus,
// frame snapshot and guaranteed teardown.
package capture

import (
	"context"
	"errors"
	"image"
)

// Facing is the preferred camera direction.
type Facing string

const (
	FacingRear  Facing = "environment"
	FacingFront Facing = "user"
)

// FocusMode is a focus capability advertised by a camera track.
type FocusMode string

const (
	FocusNone       FocusMode = ""
	FocusSingleShot FocusMode = "single-shot"
	FocusContinuous FocusMode = "continuous"
	FocusManual     FocusMode = "manual"
)

// focusPreference is the order in which tap-to-focus picks a mode.
var focusPreference = []FocusMode{FocusSingleShot, FocusContinuous}

// Point is a tap position normalized to [0, 1] on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamped returns p bounded to the unit square.
func (p Point) Clamped() Point {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return Point{X: clamp(p.X), Y: clamp(p.Y)}
}

// Device acquires camera streams. Implementations wrap platform media-capture primitives.
type Device interface {
	// Acquire opens a stream, preferring the given facing. Failures should wrap
	// ErrPermission or ErrNoDevice when the cause is known.
	Acquire(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is an open camera binding.
type Stream interface {
	// Tracks returns the hardware tracks that must be stopped on teardown.
	Tracks() []Track
	// FocusModes returns the focus capabilities of the video track.
	FocusModes(ctx context.Context) ([]FocusMode, error)
	// ApplyFocus applies a focus constraint, optionally at a point of interest.
	ApplyFocus(ctx context.Context, mode FocusMode, at *Point) error
	// Snapshot draws the current live frame into a still buffer.
	Snapshot(ctx context.Context) (image.Image, error)
}

// Track is a single hardware track. Stop must be idempotent.
type Track interface {
	Stop()
}

// Device failure causes. Devices wrap these so the manager can classify failures.
var (
	ErrPermission = errors.New("camera permission denied")
	ErrNoDevice   = errors.New("no compatible camera found")
)

// State is the lifecycle state of the camera session.
type State string

const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateLive    State = "live"
)

// Misuse errors; they never change state.
var (
	ErrAlreadyOpen = errors.New("camera session already open")
	ErrNotLive     = errors.New("camera session is not live")
	ErrClosed      = errors.New("camera session closed while opening")
)

// selectFocusMode picks the best supported mode from the preference order.
func selectFocusMode(supported []FocusMode) FocusMode {
	for _, want := range focusPreference {
		for _, have := range supported {
			if have == want {
				return want
			}
		}
	}
	return FocusNone
}

func supports(supported []FocusMode, mode FocusMode) bool {
	for _, have := range supported {
		if have == mode {
			return true
		}
	}
	return false
}
