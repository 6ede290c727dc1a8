package chromecam

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/radouane/scanner/internal/capture"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"NotAllowedError", capture.ErrPermission},
		{"SecurityError", capture.ErrPermission},
		{"NotFoundError", capture.ErrNoDevice},
		{"OverconstrainedError", capture.ErrNoDevice},
		{"NotReadableError", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.name, "denied")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && (errors.Is(err, capture.ErrPermission) || errors.Is(err, capture.ErrNoDevice)) {
				t.Errorf("Expected unclassified error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.name) {
				t.Errorf("Expected error to name %s, got %v", tt.name, err)
			}
		})
	}
}

func TestServePage(t *testing.T) {
	p, err := servePage()
	if err != nil {
		t.Fatalf("servePage: %v", err)
	}
	t.Cleanup(p.Close)

	if !strings.HasPrefix(p.URL, "http://127.0.0.1:") {
		t.Errorf("Expected loopback URL, got %s", p.URL)
	}

	resp, err := http.Get(p.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"getUserMedia", "applyConstraints", "window.scanner", `id="preview"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected page to contain %s", want)
		}
	}
}
