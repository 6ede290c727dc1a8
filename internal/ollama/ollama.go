package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/radouane/scanner/internal/providers"
)

const (
	Name         = "ollama"
	DefaultModel = "llava"
)

func init() {
	providers.Register(providers.Descriptor{
		Name:          Name,
		DefaultModel:  DefaultModel,
		CredentialEnv: "OLLAMA_API_KEY",
		New:           func(cfg providers.Config) providers.Analyzer { return New(cfg) },
	})
}

// Ollama is a provider for Ollama vision models
type Ollama struct {
	config providers.Config
	client *http.Client
}

// New returns a new Ollama provider. The endpoint defaults to OLLAMA_URL, then localhost.
func New(cfg providers.Config) *Ollama {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OLLAMA_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &Ollama{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Analyze sends the label image to /api/generate in JSON mode. The credential is sent as a
// bearer token for authenticating proxies in front of Ollama.
func (o *Ollama) Analyze(ctx context.Context, req providers.Request) ([]byte, error) {
	url := strings.TrimSuffix(o.config.BaseURL, "/") + "/api/generate"

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  o.config.Model,
		"system": providers.SystemPrompt(req.Language),
		"prompt": providers.UserPrompt(req.Language, req.Category),
		"images": []string{base64.StdEncoding.EncodeToString(req.Image)},
		"format": "json",
		"stream": false,
		"options": map[string]interface{}{
			"temperature": o.config.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if response.Response == "" {
		return nil, fmt.Errorf("empty response returned from Ollama")
	}

	return []byte(response.Response), nil
}
