// Package scan drives one analysis workflow: image selection, credential check, a single
// in-flight provider request, and result or error resolution.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/providers"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/scoring"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateImageReady State = "image_ready"
	StateAnalyzing  State = "analyzing"
	StateResolved   State = "resolved"
	StateFailed     State = "failed"
)

// Misuse errors. They never change state.
var (
	ErrAnalysisInFlight = errors.New("an analysis is already in flight")
	ErrAlreadyResolved  = errors.New("analysis already resolved; reset or select a new image")
	ErrUnknownCategory  = errors.New("unknown product category")
	ErrUnknownLanguage  = errors.New("unsupported language")
)

// Credentials is the credential collaborator.
type Credentials interface {
	Credential() (string, bool)
	// RequestEntry asks the user to enter a credential.
	RequestEntry()
}

// Options configures an Orchestrator.
type Options struct {
	Language string
	Category string
	Policy   scoring.Policy
	Logger   *slog.Logger
}

// Orchestrator is the analysis state machine. It owns at most one in-flight request.
type Orchestrator struct {
	analyzer  providers.Analyzer
	creds     Credentials
	validator *scoring.Validator
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	asset    *imageasset.Asset
	result   *models.AnalysisResult
	report   *scoring.Report
	err      *scanerr.Error
	language string
	category string
	// gen changes whenever the image or session is replaced, so late responses can be
	// recognised as stale.
	gen     uint64
	version uint64
	updated time.Time

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

// New creates an orchestrator in the Idle state.
func New(analyzer providers.Analyzer, creds Credentials, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.Language
	if !providers.SupportedLanguage(lang) {
		lang = providers.LanguageEnglish
	}
	category := opts.Category
	if _, ok := models.ProductCategories[category]; !ok {
		category = ""
	}
	return &Orchestrator{
		analyzer:    analyzer,
		creds:       creds,
		validator:   scoring.NewValidator(opts.Policy, logger),
		logger:      logger,
		state:       StateIdle,
		language:    lang,
		category:    category,
		updated:     time.Now(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Asset returns the selected image, if any.
func (o *Orchestrator) Asset() *imageasset.Asset {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.asset
}

// SelectImage replaces the selected image from any state. A nil asset returns to Idle.
// Any prior result or error is discarded, and an in-flight response becomes stale.
func (o *Orchestrator) SelectImage(asset *imageasset.Asset) {
	o.mu.Lock()
	previous := o.asset
	o.asset = asset
	o.result, o.report, o.err = nil, nil, nil
	o.gen++
	if asset == nil {
		o.state = StateIdle
	} else {
		o.state = StateImageReady
	}
	snap := o.transitionLocked()
	o.mu.Unlock()

	if previous != nil && previous != asset {
		previous.Release()
	}
	o.logger.Debug("Image selected", "state", snap.State)
	o.publish(snap)
}

// SetCategory sets the product category hint. An empty key clears it.
func (o *Orchestrator) SetCategory(key string) error {
	if _, ok := models.ProductCategories[key]; key != "" && !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, key)
	}
	return o.update(func() { o.category = key })
}

// SetLanguage sets the response language.
func (o *Orchestrator) SetLanguage(lang string) error {
	if !providers.SupportedLanguage(lang) {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, lang)
	}
	return o.update(func() { o.language = lang })
}

func (o *Orchestrator) update(apply func()) error {
	o.mu.Lock()
	if o.state == StateAnalyzing {
		o.mu.Unlock()
		return ErrAnalysisInFlight
	}
	apply()
	snap := o.transitionLocked()
	o.mu.Unlock()
	o.publish(snap)
	return nil
}

// Analyze checks preconditions and dispatches one request. Precondition failures move the
// orchestrator to Failed and are returned. On dispatch, the returned channel receives the
// terminal snapshot once the response resolves; it is closed without a value if the response
// went stale.
func (o *Orchestrator) Analyze(ctx context.Context) (<-chan Snapshot, error) {
	o.mu.Lock()
	switch o.state {
	case StateAnalyzing:
		o.mu.Unlock()
		return nil, ErrAnalysisInFlight
	case StateResolved:
		o.mu.Unlock()
		return nil, ErrAlreadyResolved
	}

	if o.asset == nil {
		return nil, o.failLocked(scanerr.NoImageSelected())
	}

	credential, ok := o.creds.Credential()
	if !ok {
		err := o.failLocked(scanerr.MissingCredential())
		o.creds.RequestEntry()
		return nil, err
	}

	o.state = StateAnalyzing
	o.err = nil
	o.gen++
	gen := o.gen
	req := providers.Request{
		Image:      o.asset.Data(),
		MIMEType:   o.asset.MIMEType(),
		Language:   o.language,
		Credential: credential,
		Category:   models.CategoryLabel(o.category),
	}
	snap := o.transitionLocked()
	o.mu.Unlock()

	o.logger.Info("Dispatching analysis", "mime", req.MIMEType, "bytes", len(req.Image), "language", req.Language, "category", req.Category)
	o.publish(snap)

	done := make(chan Snapshot, 1)
	go o.dispatch(context.WithoutCancel(ctx), gen, req, done)
	return done, nil
}

// failLocked moves to Failed and unlocks.
func (o *Orchestrator) failLocked(err *scanerr.Error) error {
	o.state = StateFailed
	o.err = err
	o.result, o.report = nil, nil
	snap := o.transitionLocked()
	o.mu.Unlock()

	o.logger.Warn("Analysis precondition failed", "kind", err.Kind)
	o.publish(snap)
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, gen uint64, req providers.Request, done chan<- Snapshot) {
	defer close(done)

	start := time.Now()
	raw, err := o.analyzer.Analyze(ctx, req)

	var (
		result *models.AnalysisResult
		report *scoring.Report
		failed *scanerr.Error
	)
	if err != nil {
		failed = scanerr.As(err)
		if failed.Kind != scanerr.KindProviderError && failed.Kind != scanerr.KindInvalidResponse {
			failed = scanerr.ProviderError(err)
		}
	} else {
		result, report, err = o.validator.Validate(raw)
		if err != nil {
			failed = scanerr.As(err)
		}
	}

	o.mu.Lock()
	if o.gen != gen || o.state != StateAnalyzing {
		o.mu.Unlock()
		o.logger.Info("Discarding stale analysis response", "elapsed", time.Since(start))
		return
	}
	if failed != nil {
		o.state = StateFailed
		o.err = failed
	} else {
		o.state = StateResolved
		o.result = result
		o.report = report
	}
	snap := o.transitionLocked()
	o.mu.Unlock()

	if failed != nil {
		o.logger.Error("Analysis failed", "kind", failed.Kind, "err", failed, "elapsed", time.Since(start))
	} else {
		o.logger.Info("Analysis resolved", "product", result.ProductName, "score", result.OverallScore, "elapsed", time.Since(start))
	}
	o.publish(snap)
	done <- snap
}

// Reset returns to Idle from any state and releases the selected image.
func (o *Orchestrator) Reset() {
	o.SelectImage(nil)
}

// Subscribe returns a channel receiving a snapshot after every transition.
// Slow subscribers miss snapshots.
func (o *Orchestrator) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	o.subMu.Lock()
	o.subscribers[ch] = struct{}{}
	o.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (o *Orchestrator) Unsubscribe(ch <-chan Snapshot) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for sub := range o.subscribers {
		if sub == ch {
			delete(o.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (o *Orchestrator) publish(snap Snapshot) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for sub := range o.subscribers {
		select {
		case sub <- snap:
		default:
		}
	}
}
