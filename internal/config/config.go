// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/radouane/scanner/internal/credentials"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/providers"
	"github.com/radouane/scanner/internal/scoring"
)

const (
	DefaultProvider        = "gemini"
	DefaultProviderTimeout = 90 * time.Second
	DefaultPort            = "8888"
)

// Config is the resolved process configuration.
type Config struct {
	Provider        string
	Model           string
	OpenAIBaseURL   string
	OllamaURL       string
	Temperature     float64
	ProviderTimeout time.Duration

	Language     string
	Category     string
	StrictScores bool

	CredentialsFile string
	MaxImageBytes   int64

	ChromePath string
	FakeCamera bool

	Port           string
	StaticDir      string
	AllowURLUpload bool
	// AllowedOrigins may open the event socket besides the serving origin. "*" allows any.
	AllowedOrigins []string
	LogLevel       string
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	return load(os.Getenv)
}

// FromEnv reads the environment without validating, so callers can apply overrides first.
func FromEnv() (*Config, error) {
	return parse(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg, err := parse(getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Provider:        strings.ToLower(envOr(getenv, "RADOUANE_PROVIDER", DefaultProvider)),
		Model:           getenv("RADOUANE_MODEL"),
		Language:        envOr(getenv, "RADOUANE_LANGUAGE", providers.LanguageEnglish),
		Category:        getenv("RADOUANE_CATEGORY"),
		CredentialsFile: envOr(getenv, "RADOUANE_CREDENTIALS_FILE", credentials.DefaultPath()),
		OpenAIBaseURL:   getenv("OPENAI_BASE_URL"),
		OllamaURL:       getenv("OLLAMA_URL"),
		ChromePath:      getenv("CHROME_PATH"),
		Port:            envOr(getenv, "PORT", DefaultPort),
		StaticDir:       getenv("RADOUANE_STATIC_DIR"),
		LogLevel:        getenv("LOG_LEVEL"),
		AllowedOrigins:  splitList(getenv("RADOUANE_ALLOWED_ORIGINS")),
	}

	var errs []error
	var err error
	if cfg.StrictScores, err = envBool(getenv, "RADOUANE_STRICT_SCORES"); err != nil {
		errs = append(errs, err)
	}
	if cfg.FakeCamera, err = envBool(getenv, "RADOUANE_FAKE_CAMERA"); err != nil {
		errs = append(errs, err)
	}
	if cfg.AllowURLUpload, err = envBool(getenv, "RADOUANE_ALLOW_URL_UPLOAD"); err != nil {
		errs = append(errs, err)
	}

	cfg.ProviderTimeout = DefaultProviderTimeout
	if v := getenv("RADOUANE_PROVIDER_TIMEOUT"); v != "" {
		if cfg.ProviderTimeout, err = time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("RADOUANE_PROVIDER_TIMEOUT: %w", err))
		}
	}

	cfg.MaxImageBytes = imageasset.DefaultMaxBytes
	if v := getenv("RADOUANE_MAX_IMAGE_BYTES"); v != "" {
		if cfg.MaxImageBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("RADOUANE_MAX_IMAGE_BYTES: %w", err))
		}
	}

	if v := getenv("RADOUANE_TEMPERATURE"); v != "" {
		if cfg.Temperature, err = strconv.ParseFloat(v, 64); err != nil {
			errs = append(errs, fmt.Errorf("RADOUANE_TEMPERATURE: %w", err))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports unknown providers, languages and categories and non-positive limits.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := providers.Lookup(c.Provider); !ok {
		errs = append(errs, fmt.Errorf("unknown provider %q (available: %s)", c.Provider, strings.Join(providers.Names(), ", ")))
	}
	if !providers.SupportedLanguage(c.Language) {
		errs = append(errs, fmt.Errorf("unknown language %q", c.Language))
	}
	if _, ok := models.ProductCategories[c.Category]; c.Category != "" && !ok {
		errs = append(errs, fmt.Errorf("unknown category %q", c.Category))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("provider timeout must be positive, got %s", c.ProviderTimeout))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max image bytes must be positive, got %d", c.MaxImageBytes))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature))
	}
	return errors.Join(errs...)
}

// Policy returns the score-mismatch policy.
func (c *Config) Policy() scoring.Policy {
	if c.StrictScores {
		return scoring.PolicyStrict
	}
	return scoring.PolicyWarn
}

// ProviderConfig returns the provider settings.
func (c *Config) ProviderConfig() providers.Config {
	pc := providers.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		Timeout:     c.ProviderTimeout,
	}
	switch c.Provider {
	case "openai":
		pc.BaseURL = c.OpenAIBaseURL
	case "ollama":
		pc.BaseURL = c.OllamaURL
	}
	return pc
}

// Analyzer builds the configured provider.
func (c *Config) Analyzer() (providers.Analyzer, error) {
	return providers.New(c.Provider, c.ProviderConfig())
}

// Credentials returns the credential store for the configured provider.
func (c *Config) Credentials(logger *slog.Logger) *credentials.Store {
	return credentials.NewStore(c.Provider, c.CredentialEnv(), c.CredentialsFile, logger)
}

// ModelName returns the configured model or the provider default.
func (c *Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	if d, ok := providers.Lookup(c.Provider); ok {
		return d.DefaultModel
	}
	return ""
}

// CredentialEnv returns the environment variable holding the credential for the provider.
func (c *Config) CredentialEnv() string {
	if d, ok := providers.Lookup(c.Provider); ok {
		return d.CredentialEnv
	}
	return ""
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(getenv func(string) string, key string) (bool, error) {
	v := getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
