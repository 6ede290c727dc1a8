package storage

import (
	"testing"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/session"
	"github.com/radouane/scanner/internal/testutil"
)

func TestSessionStore(t *testing.T) {
	previews := imageasset.NewPreviewStore()
	f := &session.Factory{
		Previews:    previews,
		Device:      &testutil.FakeDevice{Stream: testutil.NewFakeStream()},
		Analyzer:    &testutil.FakeAnalyzer{},
		Credentials: &testutil.StaticCredentials{},
	}
	store := New()

	a, b := f.New(), f.New()
	store.Set(a)
	store.Set(b)

	if got, ok := store.Get(a.ID); !ok || got != a {
		t.Error("Expected to find session a")
	}
	if all := store.GetAll(); len(all) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(all))
	}

	if _, err := b.SelectImage(imageasset.FromFile("a.jpg", "image/jpeg", testutil.JPEG(4, 4))); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if !store.Delete(b.ID) {
		t.Error("Expected delete to report an existing session")
	}
	if store.Delete(b.ID) {
		t.Error("Expected second delete to report a missing session")
	}
	if previews.Len() != 0 {
		t.Errorf("Expected deleted session previews to be released, got %d", previews.Len())
	}

	store.CloseAll()
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
}
