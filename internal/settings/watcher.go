package settings

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	. "github.com/hbruyere/pagemate/internal/logging"
)

// debounceWindow coalesces the create+write burst an atomic rename
// produces into a single reload.
const debounceWindow = 100 * time.Millisecond

// watcher monitors the settings file for writes from other processes
// and triggers a store reload + subscriber notification.
type watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
}

// Watch starts monitoring the settings file until ctx is done. The file
// (or at least its directory) must exist, so the store materializes
// defaults first.
func (st *Store) Watch(ctx context.Context) error {
	if _, err := st.Get(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w := &watcher{store: st, fsw: fsw}

	// Watch the directory: editors and atomic renames replace the file
	// node, and fsnotify cannot follow that when watching the file itself.
	dir := filepath.Dir(st.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return err
	}

	st.watcher = w
	L_info("settings: watching for changes", "file", filepath.Base(st.path), "dir", dir)

	go w.loop(ctx)
	return nil
}

func (w *watcher) loop(ctx context.Context) {
	defer w.fsw.Close()

	var debounce *time.Timer
	target := filepath.Base(w.store.path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			L_trace("settings: fs event", "op", event.Op.String(), "name", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.store.externalChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			L_warn("settings: watcher error", "error", err)
		}
	}
}
