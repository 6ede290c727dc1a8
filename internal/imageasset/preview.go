package imageasset

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
)

// PreviewPath is the URL prefix under which display references resolve.
const PreviewPath = "/previews/"

type previewEntry struct {
	data     []byte
	mimeType string
}

// PreviewStore hands out display references for image payloads, the server-side
// equivalent of object URLs. A reference stays resolvable until it is revoked.
type PreviewStore struct {
	mu      sync.RWMutex
	entries map[string]previewEntry
}

func NewPreviewStore() *PreviewStore {
	return &PreviewStore{
		entries: make(map[string]previewEntry),
	}
}

// Register stores a copy of data and returns its reference id.
func (s *PreviewStore) Register(data []byte, mimeType string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = previewEntry{data: bytes.Clone(data), mimeType: mimeType}
	return id
}

// Open resolves a reference id.
func (s *PreviewStore) Open(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, "", false
	}
	return entry.data, entry.mimeType, true
}

// Revoke releases a reference. Revoking an unknown or already revoked id returns false.
func (s *PreviewStore) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Len returns the number of live references.
func (s *PreviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// URL returns the display URL for a reference id.
func URL(id string) string {
	return PreviewPath + id
}
