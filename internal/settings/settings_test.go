package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hbruyere/pagemate/internal/bus"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestGetMaterializesDefaults(t *testing.T) {
	store := NewStore(t.TempDir())

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Defaults() {
		t.Errorf("expected defaults, got %+v", got)
	}

	// The default record must now exist on disk.
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("settings file not materialized: %v", err)
	}
	var onDisk Settings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("materialized file is not valid JSON: %v", err)
	}
	if onDisk != Defaults() {
		t.Errorf("on-disk record %+v differs from defaults", onDisk)
	}
}

func TestSetMergesPartially(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Set(Patch{APIKey: strPtr("k1"), BaseURL: strPtr("https://a.example")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Patch only the key; the URL and flag must survive.
	got, err := store.Set(Patch{APIKey: strPtr("k2")})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got.APIKey != "k2" {
		t.Errorf("apiKey = %q, want k2", got.APIKey)
	}
	if got.BaseURL != "https://a.example" {
		t.Errorf("baseUrl = %q, want unchanged", got.BaseURL)
	}
	if !got.IncludeContextByDefault {
		t.Error("includeContextByDefault lost its default")
	}
}

func TestSetExplicitEmptyClearsField(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Set(Patch{APIKey: strPtr("secret")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Set(Patch{APIKey: strPtr("")})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got.APIKey != "" {
		t.Errorf("explicit empty patch did not clear apiKey, got %q", got.APIKey)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Set(Patch{
		APIKey:                  strPtr("k"),
		BaseURL:                 strPtr("https://x"),
		IncludeContextByDefault: boolPtr(false),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := store.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Defaults() {
		t.Errorf("after Reset got %+v, want defaults", got)
	}
}

func TestUpdateFunctional(t *testing.T) {
	store := NewStore(t.TempDir())

	got, err := store.Update(func(s Settings) Settings {
		s.BaseURL = "https://fn.example"
		return s
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.BaseURL != "https://fn.example" {
		t.Errorf("baseUrl = %q", got.BaseURL)
	}
}

func TestSubscriberNotifiedOnWrite(t *testing.T) {
	store := NewStore(t.TempDir())

	var seen []Settings
	id := store.Subscribe(func(s Settings) {
		seen = append(seen, s)
	})
	defer bus.Unsubscribe(id)

	if _, err := store.Set(Patch{APIKey: strPtr("k")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(seen))
	}
	if seen[0].APIKey != "k" {
		t.Errorf("notification carried %+v", seen[0])
	}

	// A no-op write must not notify.
	if _, err := store.Set(Patch{APIKey: strPtr("k")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(seen) != 1 {
		t.Errorf("no-op write notified, got %d notifications", len(seen))
	}
}

func TestExternalChangeReloads(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Get(); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Simulate another process rewriting the file.
	external := Settings{APIKey: "other", BaseURL: "https://other", IncludeContextByDefault: false}
	data, _ := json.Marshal(external)
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0600); err != nil {
		t.Fatalf("external write failed: %v", err)
	}

	var notified []Settings
	id := store.Subscribe(func(s Settings) {
		notified = append(notified, s)
	})
	defer bus.Unsubscribe(id)

	store.externalChange()

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != external {
		t.Errorf("reload got %+v, want %+v", got, external)
	}
	if len(notified) != 1 || notified[0] != external {
		t.Errorf("expected one notification with external record, got %+v", notified)
	}
}
