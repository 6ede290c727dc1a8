package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/radouane/scanner/internal/scanerr"
)

// multipartOverhead leaves room for boundaries and form fields around the file part.
const multipartOverhead = 64 * 1024

// readLimited reads at most limit bytes, failing with InvalidSource when the payload is larger.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, scanerr.InvalidSource(fmt.Sprintf("image too large (max %d bytes)", limit), err)
		}
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, scanerr.InvalidSource(fmt.Sprintf("image too large (max %d bytes)", limit), nil)
	}
	return data, nil
}

func (h *Handler) downloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", scanerr.InvalidSource("image_url must be an http(s) URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", scanerr.InvalidSource("failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", scanerr.InvalidSource(fmt.Sprintf("failed to download image: HTTP %d", resp.StatusCode), nil)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, "", err
	}
	// Servers often label images as octet-stream; leave those to content sniffing.
	mimeType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = ""
	}
	return data, mimeType, nil
}

func filenameFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
