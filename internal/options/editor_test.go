package options

import (
	"testing"

	"github.com/hbruyere/pagemate/internal/settings"
)

func newEditor(t *testing.T) (*Editor, *settings.Store) {
	t.Helper()
	store := settings.NewStore(t.TempDir())
	e, err := NewEditor(store)
	if err != nil {
		t.Fatalf("NewEditor failed: %v", err)
	}
	return e, store
}

func TestDirtyTracksDrafts(t *testing.T) {
	e, _ := newEditor(t)

	if e.Dirty() {
		t.Error("fresh editor must not be dirty")
	}

	e.APIKey = "k"
	if !e.Dirty() {
		t.Error("edited draft must be dirty")
	}

	e.APIKey = ""
	if e.Dirty() {
		t.Error("draft restored to persisted value must not be dirty")
	}

	e.IncludeContext = !e.IncludeContext
	if !e.Dirty() {
		t.Error("flipped flag must be dirty")
	}
}

func TestSaveTrimsAndPersists(t *testing.T) {
	e, store := newEditor(t)

	e.APIKey = "  key-with-space  "
	e.BaseURL = "\thttps://api.example\n"

	saved, err := e.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.APIKey != "key-with-space" {
		t.Errorf("apiKey = %q, want trimmed", saved.APIKey)
	}
	if saved.BaseURL != "https://api.example" {
		t.Errorf("baseUrl = %q, want trimmed", saved.BaseURL)
	}
	if e.Dirty() {
		t.Error("editor must be clean after save")
	}

	persisted, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if persisted != saved {
		t.Errorf("store has %+v, editor saved %+v", persisted, saved)
	}
}

func TestResetClearsToDefaults(t *testing.T) {
	e, store := newEditor(t)

	e.APIKey = "k"
	e.BaseURL = "https://x"
	if _, err := e.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := e.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	persisted, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if persisted != settings.Defaults() {
		t.Errorf("store has %+v after reset", persisted)
	}
	if e.APIKey != "" || e.BaseURL != "" || !e.IncludeContext {
		t.Errorf("drafts did not mirror defaults: %q %q %v", e.APIKey, e.BaseURL, e.IncludeContext)
	}
}

func TestRevertDiscardsDrafts(t *testing.T) {
	e, _ := newEditor(t)

	e.APIKey = "abandoned"
	if err := e.Revert(); err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if e.APIKey != "" {
		t.Errorf("revert kept draft %q", e.APIKey)
	}
	if e.Dirty() {
		t.Error("reverted editor must not be dirty")
	}
}
