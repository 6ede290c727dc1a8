package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/radouane/scanner/internal/providers"
)

const (
	Name           = "openai"
	DefaultModel   = "gpt-4o"
	DefaultBaseURL = "https://api.openai.com/v1"
)

func init() {
	providers.Register(providers.Descriptor{
		Name:          Name,
		DefaultModel:  DefaultModel,
		CredentialEnv: "OPENAI_API_KEY",
		New:           func(cfg providers.Config) providers.Analyzer { return New(cfg) },
	})
}

// OpenAI is a provider for OpenAI and compatible chat-completions gateways
type OpenAI struct {
	config providers.Config
	client *http.Client
}

// New returns a new OpenAI provider
func New(cfg providers.Config) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &OpenAI{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Analyze sends the label image as a data URL and requests a JSON object response
func (o *OpenAI) Analyze(ctx context.Context, req providers.Request) ([]byte, error) {
	if req.Credential == "" {
		return nil, fmt.Errorf("OpenAI API key not provided")
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	requestBody, err := json.Marshal(map[string]interface{}{
		"model": o.config.Model,
		"messages": []message{
			{Role: "system", Content: providers.SystemPrompt(req.Language)},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: providers.UserPrompt(req.Language, req.Category)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
		"temperature":     o.config.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := strings.TrimSuffix(o.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return []byte(response.Choices[0].Message.Content), nil
}
