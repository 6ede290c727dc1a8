package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, remote Ollama).
	BaseURL string
	Timeout time.Duration
}

// Request is one analysis attempt. It is built once per dispatch and never persisted.
type Request struct {
	Image      []byte
	MIMEType   string
	Language   string
	Credential string
	// Category is the user's product category hint, as a display label. Empty means "let the
	// provider decide".
	Category string
}

// Analyzer defines the interface for an analysis provider. Analyze returns the raw response
// document; validation is the caller's job.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]byte, error)
}

// Factory builds an Analyzer from a Config.
type Factory func(cfg Config) Analyzer

// Descriptor describes a registered provider.
type Descriptor struct {
	Name         string
	DefaultModel string
	// CredentialEnv is the environment variable holding the provider's credential.
	CredentialEnv string
	New           Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Descriptor{}
)

// Register makes a provider available by name. Provider packages call it from init.
func Register(d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if d.New == nil {
		panic("providers: Register with nil factory for " + d.Name)
	}
	registry[d.Name] = d
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the analyzer registered under name. An empty model uses the provider default.
func New(name string, cfg Config) (Analyzer, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	if cfg.Model == "" {
		cfg.Model = d.DefaultModel
	}
	return d.New(cfg), nil
}
