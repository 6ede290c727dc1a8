package imageasset

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/radouane/scanner/internal/scanerr"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes = 10 * 1024 * 1024

// acceptedTypes are the sniffed formats a label image may have.
var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Normalizer validates raw sources and keeps the session's single live asset.
type Normalizer struct {
	store    *PreviewStore
	maxBytes int64
	logger   *slog.Logger

	mu      sync.Mutex
	current *Asset
}

// NewNormalizer creates a normalizer registering previews in store.
// maxBytes <= 0 uses DefaultMaxBytes.
func NewNormalizer(store *PreviewStore, maxBytes int64, logger *slog.Logger) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{store: store, maxBytes: maxBytes, logger: logger}
}

// Normalize validates src and produces a new asset, releasing the display reference of the
// asset it replaces. Non-image and empty payloads fail with scanerr.InvalidSource.
func (n *Normalizer) Normalize(src Source) (*Asset, error) {
	if len(src.Data) == 0 {
		return nil, scanerr.InvalidSource("image is empty", nil)
	}
	if int64(len(src.Data)) > n.maxBytes {
		return nil, scanerr.InvalidSource(fmt.Sprintf("image too large (max %d bytes)", n.maxBytes), nil)
	}

	declared := strings.ToLower(strings.TrimSpace(src.MIMEType))
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return nil, scanerr.InvalidSource(fmt.Sprintf("unsupported file type %q", src.MIMEType), nil)
	}

	detected := mimetype.Detect(src.Data)
	mimeType := detected.String()
	if i := strings.Index(mimeType, ";"); i != -1 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, scanerr.InvalidSource(fmt.Sprintf("content is not an image (detected %s)", mimeType), nil)
	}
	if !acceptedTypes[mimeType] {
		return nil, scanerr.InvalidSource(fmt.Sprintf("unsupported image format %s (use PNG, JPEG, WEBP or GIF)", mimeType), nil)
	}

	data := bytes.Clone(src.Data)
	width, height, err := dimensions(data)
	if err != nil {
		n.logger.Warn("Failed to get image dimensions", "mime", mimeType, "error", err)
		width, height = 0, 0
	}

	name := src.Name
	if name == "" {
		name = "image" + extensionFor(mimeType)
	}

	asset := &Asset{
		data:      data,
		mimeType:  mimeType,
		name:      name,
		source:    src.Kind,
		width:     width,
		height:    height,
		createdAt: time.Now(),
		store:     n.store,
	}
	if n.store != nil {
		asset.previewID = n.store.Register(data, mimeType)
	}

	n.mu.Lock()
	previous := n.current
	n.current = asset
	n.mu.Unlock()

	if previous != nil {
		previous.Release()
	}

	n.logger.Debug("Image normalized", "source", src.Kind, "mime", mimeType, "bytes", len(data), "width", width, "height", height)
	return asset, nil
}

// Current returns the live asset, if any.
func (n *Normalizer) Current() *Asset {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Clear releases the live asset.
func (n *Normalizer) Clear() {
	n.mu.Lock()
	previous := n.current
	n.current = nil
	n.mu.Unlock()

	if previous != nil {
		previous.Release()
	}
}

func dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
