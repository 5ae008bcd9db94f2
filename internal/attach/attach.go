// Package attach manages image attachments for a sidebar session:
// asynchronous file reads, MIME sniffing from magic bytes, downscaling
// oversized images, and data-URL encoding for the chat payload.
package attach

import (
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	. "github.com/hbruyere/pagemate/internal/logging"
)

// MaxPerPick caps how many files one selection event may add.
const MaxPerPick = 3

// Attachment is a user-added image encoded as a data URI.
// Session-scoped, removable individually.
type Attachment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	DataURL string `json:"dataUrl"`
}

// Meta is the attachment metadata sent with a chat request.
type Meta struct {
	Name    string `json:"name"`
	DataURL string `json:"dataUrl"`
}

// File is one picked file: a display name and its content stream.
type File struct {
	Name   string
	Reader io.Reader
}

// Manager holds the attachment list for one session.
type Manager struct {
	mu    sync.Mutex
	items []Attachment
	wg    sync.WaitGroup
}

// NewManager creates an empty attachment manager.
func NewManager() *Manager {
	return &Manager{}
}

// AddFiles accepts up to MaxPerPick files from one selection event and
// reads each asynchronously. Completed reads append independently, so
// there is no ordering guarantee between files of one pick. Files past
// the cap are dropped with a log line.
func (m *Manager) AddFiles(files []File) {
	if len(files) > MaxPerPick {
		L_warn("attach: too many files picked, keeping first", "picked", len(files), "max", MaxPerPick)
		files = files[:MaxPerPick]
	}

	for _, f := range files {
		m.wg.Add(1)
		go func(f File) {
			defer m.wg.Done()
			m.readOne(f)
		}(f)
	}
}

func (m *Manager) readOne(f File) {
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		L_warn("attach: failed to read file", "name", f.Name, "error", err)
		return
	}

	encoded, mime, err := encodeImage(data)
	if err != nil {
		L_warn("attach: rejected file", "name", f.Name, "error", err)
		return
	}

	att := Attachment{
		ID:      uuid.NewString(),
		Name:    f.Name,
		DataURL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(encoded)),
	}

	m.mu.Lock()
	m.items = append(m.items, att)
	m.mu.Unlock()

	L_debug("attach: added", "id", att.ID, "name", att.Name, "mime", mime, "bytes", len(encoded))
}

// Remove deletes the attachment with the given id, preserving the order
// of the rest. Returns false if no such attachment exists.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, att := range m.items {
		if att.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			L_debug("attach: removed", "id", id)
			return true
		}
	}
	return false
}

// List returns a copy of the current attachments in append order.
func (m *Manager) List() []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Attachment, len(m.items))
	copy(out, m.items)
	return out
}

// Metas returns the metadata view sent with chat requests.
func (m *Manager) Metas() []Meta {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Meta, len(m.items))
	for i, att := range m.items {
		out[i] = Meta{Name: att.Name, DataURL: att.DataURL}
	}
	return out
}

// Clear drops all attachments.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
}

// Wait blocks until all in-flight reads from prior AddFiles calls have
// completed. Tests and shutdown paths use it; the UI flow does not.
func (m *Manager) Wait() {
	m.wg.Wait()
}
