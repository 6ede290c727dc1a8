package capture_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/testutil"
)

func openLive(t *testing.T, stream *testutil.FakeStream) (*capture.Manager, *testutil.FakeDevice) {
	t.Helper()
	device := &testutil.FakeDevice{Stream: stream}
	m := capture.NewManager(device, nil)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.State() != capture.StateLive {
		t.Fatalf("Expected live state, got %s", m.State())
	}
	return m, device
}

func TestCaptureStopsTracksExactlyOnce(t *testing.T) {
	stream := testutil.NewFakeStream(capture.FocusContinuous)
	m, _ := openLive(t, stream)

	frame, err := m.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if m.State() != capture.StateClosed {
		t.Errorf("Expected closed after capture, got %s", m.State())
	}
	for i, track := range stream.TrackList {
		if track.Stops() != 1 {
			t.Errorf("Expected track %d stopped once, got %d", i, track.Stops())
		}
	}
	if m.HasStream() {
		t.Error("Expected no stream reference after capture")
	}

	if frame.MIMEType != "image/jpeg" || frame.Width != 32 || frame.Height != 24 {
		t.Errorf("Unexpected frame: %s %dx%d", frame.MIMEType, frame.Width, frame.Height)
	}
	if _, err := jpeg.Decode(bytes.NewReader(frame.Data)); err != nil {
		t.Errorf("Expected decodable JPEG, got %v", err)
	}

	// Closing after capture must not stop again.
	m.Close()
	if stream.TotalStops() != 2 {
		t.Errorf("Expected 2 total stops, got %d", stream.TotalStops())
	}
}

func TestCaptureFailureStillReleasesStream(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *testutil.FakeStream)
	}{
		{"snapshot error", func(s *testutil.FakeStream) { s.SnapshotErr = errors.New("video not ready") }},
		{"nil frame", func(s *testutil.FakeStream) { s.Frame = nil }},
		{"unencodable frame", func(s *testutil.FakeStream) { s.Frame = image.NewGray(image.Rect(0, 0, 1<<16, 1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := testutil.NewFakeStream()
			tt.mutate(stream)
			m, _ := openLive(t, stream)

			_, err := m.Capture(context.Background())
			if !errors.Is(err, scanerr.ErrDeviceAccessFailed) {
				t.Errorf("Expected DeviceAccessFailed, got %v", err)
			}
			if m.State() != capture.StateClosed {
				t.Errorf("Expected closed, got %s", m.State())
			}
			for i, track := range stream.TrackList {
				if track.Stops() != 1 {
					t.Errorf("Expected track %d stopped once, got %d", i, track.Stops())
				}
			}
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	stream := testutil.NewFakeStream()
	m, _ := openLive(t, stream)

	m.Close()
	m.Close()

	for i, track := range stream.TrackList {
		if track.Stops() != 1 {
			t.Errorf("Expected track %d stopped once, got %d", i, track.Stops())
		}
	}
	if _, err := m.Capture(context.Background()); !errors.Is(err, capture.ErrNotLive) {
		t.Errorf("Expected ErrNotLive after close, got %v", err)
	}
}

func TestOpenFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", fmt.Errorf("NotAllowedError: %w", capture.ErrPermission), scanerr.ErrPermissionDenied},
		{"no device", fmt.Errorf("NotFoundError: %w", capture.ErrNoDevice), scanerr.ErrDeviceNotFound},
		{"other", errors.New("NotReadableError: device busy"), scanerr.ErrDeviceAccessFailed},
		{"preclassified", scanerr.PermissionDenied("blocked by policy", nil), scanerr.ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &testutil.FakeDevice{Err: tt.err}
			m := capture.NewManager(device, nil)
			events := m.Subscribe()

			err := m.Open(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if m.State() != capture.StateClosed {
				t.Errorf("Expected closed, got %s", m.State())
			}
			if m.HasStream() {
				t.Error("Expected no stream reference after failed open")
			}
			if device.Acquires() != 1 {
				t.Errorf("Expected exactly one acquisition attempt, got %d", device.Acquires())
			}

			select {
			case ev := <-events:
				if ev.Kind != capture.EventFailed || ev.Error == nil {
					t.Errorf("Expected failed event with error, got %+v", ev)
				}
			default:
				t.Error("Expected a failed event")
			}
		})
	}
}

func TestCloseWhileOpeningStopsLateStream(t *testing.T) {
	stream := testutil.NewFakeStream()
	device := &testutil.FakeDevice{
		Stream:    stream,
		Gate:      make(chan struct{}),
		Acquiring: make(chan struct{}, 1),
	}
	m := capture.NewManager(device, nil)

	done := make(chan error, 1)
	go func() { done <- m.Open(context.Background()) }()

	<-device.Acquiring
	if m.State() != capture.StateOpening {
		t.Fatalf("Expected opening, got %s", m.State())
	}
	m.Close()
	close(device.Gate)

	select {
	case err := <-done:
		if !errors.Is(err, capture.ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return")
	}

	if m.State() != capture.StateClosed {
		t.Errorf("Expected closed, got %s", m.State())
	}
	for i, track := range stream.TrackList {
		if track.Stops() != 1 {
			t.Errorf("Expected track %d stopped once, got %d", i, track.Stops())
		}
	}
}

func TestOpenTwiceIsRejected(t *testing.T) {
	m, device := openLive(t, testutil.NewFakeStream())
	if err := m.Open(context.Background()); !errors.Is(err, capture.ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}
	if device.Acquires() != 1 {
		t.Errorf("Expected one acquisition, got %d", device.Acquires())
	}
	if m.State() != capture.StateLive {
		t.Errorf("Expected state unchanged, got %s", m.State())
	}
}

func TestFocusAtPreference(t *testing.T) {
	tests := []struct {
		name        string
		modes       []capture.FocusMode
		wantMode    capture.FocusMode
		wantApplied bool
	}{
		{"single-shot preferred", []capture.FocusMode{capture.FocusContinuous, capture.FocusSingleShot}, capture.FocusSingleShot, true},
		{"continuous fallback", []capture.FocusMode{capture.FocusManual, capture.FocusContinuous}, capture.FocusContinuous, true},
		{"no capability", nil, capture.FocusNone, false},
		{"manual only", []capture.FocusMode{capture.FocusManual}, capture.FocusNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := testutil.NewFakeStream(tt.modes...)
			m, _ := openLive(t, stream)
			events := m.Subscribe()

			result, err := m.FocusAt(context.Background(), capture.Point{X: 1.4, Y: 0.25})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if result.Mode != tt.wantMode || result.Applied != tt.wantApplied {
				t.Errorf("Expected %q applied=%v, got %q applied=%v", tt.wantMode, tt.wantApplied, result.Mode, result.Applied)
			}
			if result.Point.X != 1 || result.Point.Y != 0.25 {
				t.Errorf("Expected clamped point, got %+v", result.Point)
			}

			ev := <-events
			if ev.Kind != capture.EventFocusAck {
				t.Errorf("Expected focus acknowledgement, got %s", ev.Kind)
			}

			if !tt.wantApplied {
				for _, a := range stream.Applied() {
					if a.Point != nil {
						t.Errorf("Expected no point constraint applied, got %+v", a)
					}
				}
			}
			if m.State() != capture.StateLive {
				t.Errorf("Expected still live, got %s", m.State())
			}
		})
	}
}

func TestFocusAtApplyFailureIsAcknowledged(t *testing.T) {
	stream := testutil.NewFakeStream(capture.FocusSingleShot)
	m, _ := openLive(t, stream)
	stream.ApplyErr = errors.New("OverconstrainedError")

	result, err := m.FocusAt(context.Background(), capture.Point{X: 0.5, Y: 0.5})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Applied {
		t.Error("Expected constraint reported as not applied")
	}
}

func TestFocusAtRequiresLive(t *testing.T) {
	m := capture.NewManager(&testutil.FakeDevice{Stream: testutil.NewFakeStream()}, nil)
	if _, err := m.FocusAt(context.Background(), capture.Point{}); !errors.Is(err, capture.ErrNotLive) {
		t.Errorf("Expected ErrNotLive, got %v", err)
	}
}

func TestOpenNegotiatesContinuousFocus(t *testing.T) {
	m, _ := openLive(t, testutil.NewFakeStream(capture.FocusContinuous, capture.FocusSingleShot))
	if m.FocusMode() != capture.FocusContinuous {
		t.Errorf("Expected continuous focus, got %q", m.FocusMode())
	}

	m2, _ := openLive(t, testutil.NewFakeStream())
	if m2.FocusMode() != capture.FocusNone {
		t.Errorf("Expected no focus mode, got %q", m2.FocusMode())
	}
}

func TestReopenAfterClose(t *testing.T) {
	first := testutil.NewFakeStream()
	device := &testutil.FakeDevice{Stream: first}
	m := capture.NewManager(device, nil)

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Close()

	second := testutil.NewFakeStream()
	device.Stream = second
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	m.Close()

	if first.TotalStops() != 2 || second.TotalStops() != 2 {
		t.Errorf("Expected each stream's tracks stopped once, got %d and %d", first.TotalStops(), second.TotalStops())
	}
}
