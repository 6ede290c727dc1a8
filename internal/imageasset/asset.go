// Package imageasset turns any raw image input (file picker, drag-and-drop, captured camera
// frame) into one canonical in-memory ImageAsset with a display reference.
package imageasset

import (
	"bytes"
	"sync"
	"time"
)

// SourceKind records which path produced an image.
type SourceKind string

const (
	SourcePicker SourceKind = "picker"
	SourceDrop   SourceKind = "drop"
	SourceCamera SourceKind = "camera"
)

// Source is a raw, not yet validated image input.
type Source struct {
	Kind     SourceKind
	Name     string
	MIMEType string
	Data     []byte
}

// FromFile wraps a file chosen through a file picker.
func FromFile(name, mimeType string, data []byte) Source {
	return Source{Kind: SourcePicker, Name: name, MIMEType: mimeType, Data: data}
}

// FromDrop wraps a file dropped onto the page.
func FromDrop(name, mimeType string, data []byte) Source {
	return Source{Kind: SourceDrop, Name: name, MIMEType: mimeType, Data: data}
}

// Frame is an encoded still captured from a camera stream.
type Frame struct {
	Data       []byte
	MIMEType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// FromFrame wraps a captured camera frame.
func FromFrame(f *Frame) Source {
	return Source{
		Kind:     SourceCamera,
		Name:     "capture-" + f.CapturedAt.Format("20060102-150405") + extensionFor(f.MIMEType),
		MIMEType: f.MIMEType,
		Data:     f.Data,
	}
}

// Asset is a normalized image: one decoded payload plus one display reference.
type Asset struct {
	data      []byte
	mimeType  string
	name      string
	source    SourceKind
	width     int
	height    int
	createdAt time.Time

	previewID string
	store     *PreviewStore
	release   sync.Once
	released  bool
	mu        sync.Mutex
}

// Data returns a copy of the image bytes.
func (a *Asset) Data() []byte { return bytes.Clone(a.data) }

func (a *Asset) MIMEType() string     { return a.mimeType }
func (a *Asset) Name() string         { return a.name }
func (a *Asset) Source() SourceKind   { return a.source }
func (a *Asset) Width() int           { return a.width }
func (a *Asset) Height() int          { return a.height }
func (a *Asset) Size() int            { return len(a.data) }
func (a *Asset) CreatedAt() time.Time { return a.createdAt }

// PreviewID is the display reference id in the owning PreviewStore.
func (a *Asset) PreviewID() string { return a.previewID }

// PreviewURL is the displayable reference for rendering collaborators.
func (a *Asset) PreviewURL() string { return URL(a.previewID) }

// Release revokes the display reference. Safe to call more than once.
func (a *Asset) Release() {
	a.release.Do(func() {
		if a.store != nil {
			a.store.Revoke(a.previewID)
		}
		a.mu.Lock()
		a.released = true
		a.mu.Unlock()
	})
}

// Released reports whether the display reference has been revoked.
func (a *Asset) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
