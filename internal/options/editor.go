// Package options implements the settings editor: draft copies of the
// persisted fields, a dirty check gating save, trim-on-save, and reset
// to defaults. Pure state logic, no UI dependency; the httpapi surface
// renders it.
package options

import (
	"strings"

	"github.com/hbruyere/pagemate/internal/settings"
)

// Editor holds draft copies of the settings fields.
type Editor struct {
	store *settings.Store

	persisted settings.Settings

	// Drafts, edited freely until Save or Revert.
	APIKey         string
	BaseURL        string
	IncludeContext bool
}

// NewEditor creates an editor seeded from the store.
func NewEditor(store *settings.Store) (*Editor, error) {
	e := &Editor{store: store}
	if err := e.seed(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Editor) seed() error {
	s, err := e.store.Get()
	if err != nil {
		return err
	}
	e.persisted = s
	e.APIKey = s.APIKey
	e.BaseURL = s.BaseURL
	e.IncludeContext = s.IncludeContextByDefault
	return nil
}

// Dirty reports whether any draft differs from the persisted values.
// A save control should only be enabled while this is true.
func (e *Editor) Dirty() bool {
	return e.APIKey != e.persisted.APIKey ||
		e.BaseURL != e.persisted.BaseURL ||
		e.IncludeContext != e.persisted.IncludeContextByDefault
}

// Save trims the string drafts, persists them, and reseeds the drafts
// from the stored record.
func (e *Editor) Save() (settings.Settings, error) {
	apiKey := strings.TrimSpace(e.APIKey)
	baseURL := strings.TrimSpace(e.BaseURL)
	include := e.IncludeContext

	saved, err := e.store.Set(settings.Patch{
		APIKey:                  &apiKey,
		BaseURL:                 &baseURL,
		IncludeContextByDefault: &include,
	})
	if err != nil {
		return settings.Settings{}, err
	}

	e.persisted = saved
	e.APIKey = saved.APIKey
	e.BaseURL = saved.BaseURL
	e.IncludeContext = saved.IncludeContextByDefault
	return saved, nil
}

// Reset clears the persisted settings to defaults. The drafts mirror
// the defaults immediately.
func (e *Editor) Reset() error {
	if _, err := e.store.Reset(); err != nil {
		return err
	}
	return e.seed()
}

// Revert discards draft edits, reloading from the store.
func (e *Editor) Revert() error {
	return e.seed()
}
