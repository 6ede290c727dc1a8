// Package chromecam implements capture.Device over a headless Chrome instance driven by
// chromedp, using the browser's media-capture primitives (getUserMedia, track capabilities,
// applyConstraints, MediaStreamTrack.stop).
package chromecam

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/radouane/scanner/internal/capture"
)

// Options configures the browser used as the capture backend.
type Options struct {
	// ExecPath is the Chrome binary; empty lets chromedp find one.
	ExecPath string
	// FakeDevice feeds Chrome's synthetic camera instead of real hardware.
	FakeDevice bool
	// Width and Height are the ideal capture resolution.
	Width  int
	Height int
	Logger *slog.Logger
}

// Device acquires camera streams through Chrome.
type Device struct {
	opts Options
}

// New returns a Chrome-backed device.
func New(opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Width == 0 {
		opts.Width = 1920
	}
	if opts.Height == 0 {
		opts.Height = 1080
	}
	return &Device{opts: opts}
}

type jsResult struct {
	OK      bool     `json:"ok"`
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Tracks  int      `json:"tracks"`
	Modes   []string `json:"modes"`
	DataURL string   `json:"dataUrl"`
}

// Acquire starts Chrome, opens the local capture page and requests a camera stream.
func (d *Device) Acquire(ctx context.Context, facing capture.Facing) (capture.Stream, error) {
	page, err := servePage()
	if err != nil {
		return nil, fmt.Errorf("failed to start capture page: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if d.opts.FakeDevice {
		allocOpts = append(allocOpts, chromedp.Flag("use-fake-device-for-media-stream", true))
	}
	if d.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	release := func() {
		browserCancel()
		allocCancel()
		page.Close()
	}

	// Cancelling the caller's context aborts a pending acquisition only.
	detach := context.AfterFunc(ctx, release)

	var res jsResult
	expr := fmt.Sprintf("window.scanner.open(%q, %d, %d)", string(facing), d.opts.Width, d.opts.Height)
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(page.URL),
		chromedp.WaitReady("#preview", chromedp.ByID),
		chromedp.Evaluate(expr, &res, awaitPromise),
	)
	if !detach() {
		return nil, fmt.Errorf("camera acquisition cancelled: %w", context.Cause(ctx))
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to drive capture page: %w", err)
	}
	if !res.OK {
		release()
		return nil, classify(res.Name, res.Message)
	}

	d.opts.Logger.Info("Camera stream acquired", "tracks", res.Tracks, "facing", facing)

	s := &stream{ctx: browserCtx, release: release, logger: d.opts.Logger}
	s.remaining.Store(int32(res.Tracks))
	for i := 0; i < res.Tracks; i++ {
		s.tracks = append(s.tracks, &track{stream: s, index: i})
	}
	if res.Tracks == 0 {
		s.tracks = append(s.tracks, &track{stream: s, index: -1})
		s.remaining.Store(1)
	}
	return s, nil
}

// classify maps DOMException names from getUserMedia onto device failure causes.
func classify(name, message string) error {
	switch name {
	case "NotAllowedError", "SecurityError":
		return fmt.Errorf("%s: %s: %w", name, message, capture.ErrPermission)
	case "NotFoundError", "OverconstrainedError":
		return fmt.Errorf("%s: %s: %w", name, message, capture.ErrNoDevice)
	default:
		return fmt.Errorf("%s: %s", name, message)
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

type stream struct {
	ctx       context.Context
	release   func()
	logger    *slog.Logger
	tracks    []*track
	remaining atomic.Int32
}

func (s *stream) Tracks() []capture.Track {
	out := make([]capture.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *stream) FocusModes(ctx context.Context) ([]capture.FocusMode, error) {
	var res jsResult
	if err := s.eval(ctx, "window.scanner.focusModes()", &res); err != nil {
		return nil, err
	}
	modes := make([]capture.FocusMode, 0, len(res.Modes))
	for _, m := range res.Modes {
		modes = append(modes, capture.FocusMode(m))
	}
	return modes, nil
}

func (s *stream) ApplyFocus(ctx context.Context, mode capture.FocusMode, at *capture.Point) error {
	expr := fmt.Sprintf("window.scanner.applyFocus(%q, null)", string(mode))
	if at != nil {
		expr = fmt.Sprintf("window.scanner.applyFocus(%q, {x: %f, y: %f})", string(mode), at.X, at.Y)
	}
	var res jsResult
	if err := s.eval(ctx, expr, &res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s: %s", res.Name, res.Message)
	}
	return nil
}

func (s *stream) Snapshot(ctx context.Context) (image.Image, error) {
	var res jsResult
	if err := s.eval(ctx, "window.scanner.snapshot()", &res); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("%s: %s", res.Name, res.Message)
	}
	_, payload, found := strings.Cut(res.DataURL, ",")
	if !found {
		return nil, errors.New("malformed frame data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// eval runs expr in the page, bounded by ctx as well as the browser's lifetime.
func (s *stream) eval(ctx context.Context, expr string, out *jsResult) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, out, awaitPromise)); err != nil {
		return fmt.Errorf("failed to evaluate %q: %w", expr, err)
	}
	return nil
}

type track struct {
	stream *stream
	index  int
	once   sync.Once
}

// Stop stops the browser track; the last stopped track shuts the browser down.
func (t *track) Stop() {
	t.once.Do(func() {
		s := t.stream
		if t.index >= 0 {
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			var res jsResult
			err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scanner.stopTrack(%d)", t.index), &res))
			cancel()
			if err != nil {
				s.logger.Debug("Failed to stop browser track", "index", t.index, "err", err)
			}
		}
		if s.remaining.Add(-1) == 0 {
			s.release()
		}
	})
}

type page struct {
	URL    string
	server *http.Server
}

func (p *page) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.server.Shutdown(ctx)
}

// servePage serves the capture page on loopback, which browsers treat as a secure context.
func servePage() (*page, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(capturePage))
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	return &page{URL: "http://" + ln.Addr().String() + "/", server: srv}, nil
}
