// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/providers"
)

// ─── Logger ────────────────────────────────────────────────────────────

// LogRecorder is a slog.Handler that keeps every record in memory.
type LogRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewLogger returns a logger writing into a fresh recorder.
func NewLogger() (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	return slog.New(rec), rec
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec.Clone())
	return nil
}

func (r *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *LogRecorder) WithGroup(string) slog.Handler      { return r }

// Messages returns the messages logged at level.
func (r *LogRecorder) Messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range r.records {
		if rec.Level == level {
			out = append(out, rec.Message)
		}
	}
	return out
}

// ─── Camera ────────────────────────────────────────────────────────────

// FakeTrack counts Stop calls.
type FakeTrack struct {
	stops atomic.Int32
}

func (t *FakeTrack) Stop()      { t.stops.Add(1) }
func (t *FakeTrack) Stops() int { return int(t.stops.Load()) }

// AppliedFocus records one ApplyFocus call.
type AppliedFocus struct {
	Mode  capture.FocusMode
	Point *capture.Point
}

// FakeStream implements capture.Stream.
type FakeStream struct {
	TrackList   []*FakeTrack
	Modes       []capture.FocusMode
	ApplyErr    error
	Frame       image.Image
	SnapshotErr error

	mu      sync.Mutex
	applied []AppliedFocus
}

// NewFakeStream returns a stream with a video and an audio track and a small frame.
func NewFakeStream(modes ...capture.FocusMode) *FakeStream {
	return &FakeStream{
		TrackList: []*FakeTrack{{}, {}},
		Modes:     modes,
		Frame:     image.NewRGBA(image.Rect(0, 0, 32, 24)),
	}
}

func (s *FakeStream) Tracks() []capture.Track {
	out := make([]capture.Track, len(s.TrackList))
	for i, t := range s.TrackList {
		out[i] = t
	}
	return out
}

func (s *FakeStream) FocusModes(ctx context.Context) ([]capture.FocusMode, error) {
	return s.Modes, nil
}

func (s *FakeStream) ApplyFocus(ctx context.Context, mode capture.FocusMode, at *capture.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, AppliedFocus{Mode: mode, Point: at})
	return s.ApplyErr
}

func (s *FakeStream) Snapshot(ctx context.Context) (image.Image, error) {
	if s.SnapshotErr != nil {
		return nil, s.SnapshotErr
	}
	return s.Frame, nil
}

// Applied returns the focus constraints applied so far.
func (s *FakeStream) Applied() []AppliedFocus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AppliedFocus(nil), s.applied...)
}

// TotalStops sums Stop calls across all tracks.
func (s *FakeStream) TotalStops() int {
	n := 0
	for _, t := range s.TrackList {
		n += t.Stops()
	}
	return n
}

// FakeDevice implements capture.Device.
// If Gate is non-nil, Acquire signals Acquiring and blocks until Gate is closed.
type FakeDevice struct {
	Stream    *FakeStream
	Err       error
	Gate      chan struct{}
	Acquiring chan struct{}

	acquires atomic.Int32
}

func (d *FakeDevice) Acquire(ctx context.Context, facing capture.Facing) (capture.Stream, error) {
	d.acquires.Add(1)
	if d.Gate != nil {
		if d.Acquiring != nil {
			d.Acquiring <- struct{}{}
		}
		<-d.Gate
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Stream, nil
}

// Acquires returns how many times Acquire was called.
func (d *FakeDevice) Acquires() int { return int(d.acquires.Load()) }

// ─── Provider ──────────────────────────────────────────────────────────

// FakeAnalyzer implements providers.Analyzer with a scripted response.
// If Gate is non-nil, Analyze signals Started and blocks until Gate is closed.
type FakeAnalyzer struct {
	Response []byte
	Err      error
	Gate     chan struct{}
	Started  chan struct{}

	mu       sync.Mutex
	requests []providers.Request
}

func (a *FakeAnalyzer) Analyze(ctx context.Context, req providers.Request) ([]byte, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	if a.Gate != nil {
		if a.Started != nil {
			a.Started <- struct{}{}
		}
		<-a.Gate
	}
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Response, nil
}

// Calls returns how many requests were dispatched.
func (a *FakeAnalyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// LastRequest returns the most recent request.
func (a *FakeAnalyzer) LastRequest() providers.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return providers.Request{}
	}
	return a.requests[len(a.requests)-1]
}

// ─── Credentials ───────────────────────────────────────────────────────

// StaticCredentials returns a fixed token and counts entry requests.
type StaticCredentials struct {
	Token string

	requests atomic.Int32
}

func (c *StaticCredentials) Credential() (string, bool) { return c.Token, c.Token != "" }
func (c *StaticCredentials) RequestEntry()              { c.requests.Add(1) }

// Requests returns how many times entry was requested.
func (c *StaticCredentials) Requests() int { return int(c.requests.Load()) }

// ─── Fixtures ──────────────────────────────────────────────────────────

// JPEG encodes a w x h gradient image.
func JPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 5), uint8(x + y), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// AnalysisResponse is a contract-shaped response with one negative (penalty 20) and one
// positive (bonus 5), reporting score.
func AnalysisResponse(score int) []byte {
	return []byte(fmt.Sprintf(`{
  "productName": "Choco Crunch",
  "productCategory": "Food & Beverage",
  "analysisConfidence": {"productIdentification": "95%%", "ocrAccuracy": "98%%", "dataSource": "Ingredient list"},
  "overallScore": %d,
  "verdict": "Good",
  "summary": "Mostly fine apart from added sugar.",
  "negatives": [{"component": "Sugar", "value": "18g", "severity": "high", "penalty": 20, "description": "High sugar content."}],
  "positives": [{"component": "Fibre", "value": "6g", "severity": "good", "bonus": 5, "description": "Good fibre content."}],
  "questionable": []
}`, score))
}
