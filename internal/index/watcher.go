package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/feathernotes/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// reconcileDelay debounces the pass that follows a rename.
const reconcileDelay = 200 * time.Millisecond

type libraryWatcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
}

func (lw *libraryWatcher) notify(kind, rel string) {
	if lw.cb != nil {
		lw.cb(kind, rel)
	}
}

// Watch starts an fsnotify watcher on the notes directory and keeps the
// index in step with .fnx documents until ctx is cancelled. It calls cb (if
// non-nil) after each successful index mutation.
//
// Directories created at runtime join the watch list. fsnotify reports a
// rename on the old path only, so renames drop the old entry and schedule a
// reconciliation against the disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, notesRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, notesRoot); err != nil {
		return err
	}
	lw := &libraryWatcher{db: db, store: store, root: notesRoot, logger: logger, cb: cb}
	logger.Info("watcher: started", slog.String("root", notesRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			lw.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && isDir(ev.Name) {
				if err := addDirsRecursive(w, ev.Name); err != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name), slog.String("error", err.Error()))
				}
				lw.indexDir(ev.Name)
				continue
			}
			if lw.handle(ev) {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle applies one file event and reports whether a reconciliation pass
// is due.
func (lw *libraryWatcher) handle(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, storage.DocumentExt) {
		return false
	}
	rel, err := filepath.Rel(lw.root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		kind := "updated"
		if ev.Op&fsnotify.Create != 0 {
			kind = "created"
		}
		lw.index(rel, kind)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := lw.db.DeleteDocument(rel); err != nil {
			lw.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			lw.logger.Debug("watcher: deleted", slog.String("path", rel))
			lw.notify("deleted", rel)
		}
		return ev.Op&fsnotify.Rename != 0
	}
	return false
}

func (lw *libraryWatcher) index(rel, kind string) {
	data, err := lw.store.Read(rel)
	if err != nil {
		lw.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if err := indexFile(lw.db, rel, data); err != nil {
		lw.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	lw.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	lw.notify(kind, rel)
}

// reconcile drops index entries whose file is gone and indexes documents
// whose checksum differs from the stored one.
func (lw *libraryWatcher) reconcile() {
	checksums, err := lw.db.AllChecksums()
	if err != nil {
		lw.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := lw.store.List("")
	if err != nil {
		lw.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := lw.db.DeleteDocument(p); err == nil {
			lw.logger.Debug("reconcile: removed stale", slog.String("path", p))
			lw.notify("deleted", p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs {
			lw.index(p, "created")
		}
	}
}

// indexDir indexes the documents found in a newly created directory.
func (lw *libraryWatcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, storage.DocumentExt) {
			return nil
		}
		if rel, relErr := filepath.Rel(lw.root, path); relErr == nil {
			lw.index(filepath.ToSlash(rel), "created")
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
