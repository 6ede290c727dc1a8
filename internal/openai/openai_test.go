package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/radouane/scanner/internal/providers"
)

func TestAnalyzeSendsImageAndReturnsContent(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		ResponseFormat map[string]string `json:"response_format"`
	}
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"productName\":\"x\"}"}}]}`))
	}))
	t.Cleanup(server.Close)

	o := New(providers.Config{BaseURL: server.URL})
	out, err := o.Analyze(context.Background(), providers.Request{
		Image:      []byte{0xFF, 0xD8},
		MIMEType:   "image/png",
		Language:   "en",
		Credential: "sk-test",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if string(out) != `{"productName":"x"}` {
		t.Errorf("Expected message content, got %s", out)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Expected bearer credential, got %q", auth)
	}
	if got.Model != DefaultModel {
		t.Errorf("Expected model %s, got %s", DefaultModel, got.Model)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Errorf("Expected json_object response format, got %v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("Expected system and user messages, got %d", len(got.Messages))
	}
	if !strings.Contains(string(got.Messages[1].Content), "data:image/png;base64,/9g=") {
		t.Errorf("Expected data URL with image bytes, got %s", got.Messages[1].Content)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			_, err := New(providers.Config{BaseURL: server.URL}).Analyze(context.Background(), providers.Request{Image: []byte{1}, Credential: "k"})
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestAnalyzeRequiresCredential(t *testing.T) {
	_, err := New(providers.Config{}).Analyze(context.Background(), providers.Request{Image: []byte{1}})
	if err == nil {
		t.Error("Expected error without credential")
	}
}
