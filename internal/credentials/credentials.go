// Package credentials is the local credential collaborator: it resolves the provider token
// from the environment or a private YAML file and relays requests for interactive entry.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Where a credential was found.
const (
	SourceNone = ""
	SourceEnv  = "env"
	SourceFile = "file"
)

// Status reports credential presence without revealing it.
type Status struct {
	Provider string `json:"provider"`
	Present  bool   `json:"present"`
	Source   string `json:"source,omitempty"`
	Masked   string `json:"masked,omitempty"`
}

type fileFormat struct {
	Credentials map[string]string `yaml:"credentials"`
}

// Store resolves the credential for one provider. The environment variable wins over the file.
type Store struct {
	provider string
	envVar   string
	path     string
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []func(provider string)
}

// NewStore creates a store for provider. An empty path disables the file.
func NewStore(provider, envVar, path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{provider: provider, envVar: envVar, path: path, logger: logger}
}

// DefaultPath is credentials.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "radouane", "credentials.yaml")
}

// Credential returns the token exactly as stored, if any.
func (s *Store) Credential() (string, bool) {
	token, _ := s.lookup()
	return token, token != ""
}

// lookup returns the raw token. Whitespace only decides presence.
func (s *Store) lookup() (string, string) {
	if s.envVar != "" {
		if v := os.Getenv(s.envVar); present(v) {
			return v, SourceEnv
		}
	}
	f, err := s.read()
	if err != nil {
		s.logger.Warn("Failed to read credentials file", "path", s.path, "err", err)
		return "", SourceNone
	}
	if v := f.Credentials[s.provider]; present(v) {
		return v, SourceFile
	}
	return "", SourceNone
}

func present(token string) bool {
	return strings.TrimSpace(token) != ""
}

// Status reports whether a credential is present and where it came from.
func (s *Store) Status() Status {
	token, source := s.lookup()
	return Status{
		Provider: s.provider,
		Present:  token != "",
		Source:   source,
		Masked:   Mask(token),
	}
}

// Set writes the token to the credentials file with owner-only permissions.
func (s *Store) Set(token string) error {
	if !present(token) {
		return errors.New("credential is empty")
	}
	if s.path == "" {
		return errors.New("no credentials file configured")
	}

	f, err := s.read()
	if err != nil {
		return err
	}
	if f.Credentials == nil {
		f.Credentials = map[string]string{}
	}
	f.Credentials[s.provider] = token
	if err := s.write(f); err != nil {
		return err
	}

	s.logger.Info("Credential saved", "provider", s.provider, "path", s.path)
	return nil
}

// Clear removes the stored token. A credential set through the environment is unaffected.
func (s *Store) Clear() error {
	if s.path == "" {
		return nil
	}
	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Credentials[s.provider]; !ok {
		return nil
	}
	delete(f.Credentials, s.provider)
	if err := s.write(f); err != nil {
		return err
	}

	s.logger.Info("Credential cleared", "provider", s.provider)
	return nil
}

// OnRequest registers fn to be called when a caller needs the user to enter a credential.
func (s *Store) OnRequest(fn func(provider string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// RequestEntry signals every listener that interactive credential entry is needed.
func (s *Store) RequestEntry() {
	s.mu.Lock()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Info("Credential entry requested", "provider", s.provider, "env", s.envVar)
	for _, fn := range listeners {
		fn(s.provider)
	}
}

func (s *Store) read() (fileFormat, error) {
	var f fileFormat
	if s.path == "" {
		return f, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return f, nil
}

func (s *Store) write(f fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	return nil
}

// Mask hides all but the last four characters of a token.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
