package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MinAutoSave is the shortest auto-save interval; anything below disables
// auto-save.
const MinAutoSave = time.Minute

// RunAutoSave saves the document every interval until ctx is cancelled.
func (s *Session) RunAutoSave(ctx context.Context, every time.Duration) {
	if every < MinAutoSave {
		s.logger.Debug("auto-save disabled")
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := s.AutoSave(ctx)
			if err != nil {
				s.logger.Warn("auto-save failed", slog.String("error", err.Error()))
				continue
			}
			if saved {
				s.logger.Debug("auto-saved", slog.String("path", s.Path()))
			}
		}
	}
}

// rewatchEvery is how often WatchFile picks up a changed document path.
var rewatchEvery = time.Second

// WatchFile follows the open file on disk until ctx is cancelled. When the
// file is deleted or renamed away the close gate asks about a removed
// document; when it shows up again the flag is cleared.
func (s *Session) WatchFile(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	var dir string
	rewatch := func() {
		d := ""
		if p := s.Path(); p != "" {
			d = filepath.Dir(p)
		}
		if d == dir {
			return
		}
		if dir != "" {
			_ = w.Remove(dir)
		}
		dir = d
		if dir == "" {
			return
		}
		if err := w.Add(dir); err != nil {
			s.logger.Warn("file watcher: add dir failed",
				slog.String("path", dir), slog.String("error", err.Error()))
			dir = ""
		}
	}
	rewatch()

	ticker := time.NewTicker(rewatchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			rewatch()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			p := s.Path()
			if p == "" || filepath.Clean(ev.Name) != p {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				s.markRemoved(p, true)
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.markRemoved(p, false)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("file watcher: error", slog.String("error", err.Error()))
		}
	}
}
