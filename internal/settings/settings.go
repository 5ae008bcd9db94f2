// Package settings implements the persisted user settings record: the
// API key, chat endpoint base URL, and the default context-inclusion
// flag. One JSON record at a fixed path, materialized on first read,
// merged last-write-wins on partial updates, with change notification
// to live subscribers via the event bus.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hbruyere/pagemate/internal/bus"
	"github.com/hbruyere/pagemate/internal/config"
	. "github.com/hbruyere/pagemate/internal/logging"
)

// FileName is the settings file name under the state directory.
const FileName = "settings.json"

// Settings is the persisted record. Empty apiKey/baseUrl are valid and
// mean "unconfigured"; no validation is applied to their contents.
type Settings struct {
	APIKey                  string `json:"apiKey"`
	BaseURL                 string `json:"baseUrl"`
	IncludeContextByDefault bool   `json:"includeContextByDefault"`
}

// Defaults returns the fixed default record.
func Defaults() Settings {
	return Settings{
		APIKey:                  "",
		BaseURL:                 "",
		IncludeContextByDefault: true,
	}
}

// Configured reports whether both the API key and base URL are set.
func (s Settings) Configured() bool {
	return s.APIKey != "" && s.BaseURL != ""
}

// Patch is a partial update. Nil fields keep the prior value; a non-nil
// pointer to an empty string explicitly clears that field.
type Patch struct {
	APIKey                  *string `json:"apiKey,omitempty"`
	BaseURL                 *string `json:"baseUrl,omitempty"`
	IncludeContextByDefault *bool   `json:"includeContextByDefault,omitempty"`
}

func (p Patch) apply(s Settings) Settings {
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.BaseURL != nil {
		s.BaseURL = *p.BaseURL
	}
	if p.IncludeContextByDefault != nil {
		s.IncludeContextByDefault = *p.IncludeContextByDefault
	}
	return s
}

// Store owns the settings file and the in-memory copy of the record.
type Store struct {
	path string

	mu      sync.Mutex
	loaded  bool
	current Settings

	watcher *watcher
}

// NewStore creates a store for the settings file under stateDir.
// Nothing is read until the first access.
func NewStore(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, FileName)}
}

// Path returns the settings file location.
func (st *Store) Path() string {
	return st.path
}

// Get returns the current settings, materializing the default record on
// first access (the defaults are written to disk so a fresh install has
// a concrete file to edit and watch).
func (st *Store) Get() (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loadLocked()
}

func (st *Store) loadLocked() (Settings, error) {
	if st.loaded {
		return st.current, nil
	}

	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		st.current = Defaults()
		if err := config.AtomicWriteJSON(st.path, st.current, 0600); err != nil {
			return Settings{}, fmt.Errorf("failed to materialize default settings: %w", err)
		}
		st.loaded = true
		L_debug("settings: materialized defaults", "path", st.path)
		return st.current, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	st.current = s
	st.loaded = true
	return st.current, nil
}

// Set merges the patch over the current settings last-write-wins and
// persists the result. Fields the patch leaves nil retain their prior
// value. The merged record is returned.
func (st *Store) Set(p Patch) (Settings, error) {
	return st.write(func(s Settings) Settings { return p.apply(s) }, "set")
}

// Update applies a functional update to the current settings.
func (st *Store) Update(fn func(Settings) Settings) (Settings, error) {
	return st.write(fn, "update")
}

// Reset restores the default record.
func (st *Store) Reset() (Settings, error) {
	return st.write(func(Settings) Settings { return Defaults() }, "reset")
}

func (st *Store) write(fn func(Settings) Settings, source string) (Settings, error) {
	st.mu.Lock()
	prior, err := st.loadLocked()
	if err != nil {
		st.mu.Unlock()
		return Settings{}, err
	}

	next := fn(prior)
	if err := config.AtomicWriteJSON(st.path, next, 0600); err != nil {
		st.mu.Unlock()
		return Settings{}, err
	}
	st.current = next
	st.mu.Unlock()

	if next != prior {
		bus.PublishWithSource(bus.TopicSettingsChanged, next, source)
	}
	return next, nil
}

// Subscribe registers fn to run on every settings change, including
// external writes picked up by the file watcher. Returns an ID for
// bus.Unsubscribe.
func (st *Store) Subscribe(fn func(Settings)) bus.SubscriptionID {
	return bus.Subscribe(bus.TopicSettingsChanged, func(ev bus.Event) {
		if s, ok := ev.Data.(Settings); ok {
			fn(s)
		}
	})
}

// externalChange is called by the watcher when the file changes on disk.
func (st *Store) externalChange() {
	st.mu.Lock()
	prior := st.current
	wasLoaded := st.loaded
	st.loaded = false
	next, err := st.loadLocked()
	st.mu.Unlock()

	if err != nil {
		L_warn("settings: failed to reload after external change", "error", err)
		return
	}
	// Self-writes land here too via fsnotify; skip the duplicate notify.
	if wasLoaded && next == prior {
		return
	}
	L_debug("settings: external change", "path", st.path)
	bus.PublishWithSource(bus.TopicSettingsChanged, next, "watcher")
}
