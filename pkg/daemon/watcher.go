package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// schemaDebounce batches the write bursts editors and file syncs
// produce into one reload.
const schemaDebounce = 500 * time.Millisecond

// schemaWatcher watches the schema directory and calls reload after
// changes to its documents settle.
type schemaWatcher struct {
	dir    string
	reload func()
	fw     *fsnotify.Watcher
}

func newSchemaWatcher(dir string, reload func()) (*schemaWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &schemaWatcher{dir: dir, reload: reload, fw: fw}, nil
}

// run blocks until ctx is cancelled, debouncing change events into
// reload calls.
func (w *schemaWatcher) run(ctx context.Context) {
	defer w.fw.Close()

	timer := time.NewTimer(schemaDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !schemaDocument(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("schema change detected", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(schemaDebounce)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("schema watcher error", "err", err)
		}
	}
}

// schemaDocument reports whether path is one of the documents LoadDir
// reads, so unrelated files in the directory never trigger a reload.
func schemaDocument(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return false
	}
	switch strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) {
	case "op", "commands", "config":
		return true
	}
	return false
}
