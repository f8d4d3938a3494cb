package settings

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch rebuilds the ambient snapshot whenever one of the secrets files
// changes on disk. It blocks until the context is cancelled. Files that do not
// exist yet are picked up when their directory reports a create event.
func Watch(ctx context.Context, opts ResolveOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	files := opts.SecretsFiles
	if files == nil {
		files = []string{".secrets.toml"}
	}

	watched := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		watched[abs] = true
		// Watch the directory so renames and fresh creates are seen.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			slog.Warn("Cannot watch settings directory", "dir", filepath.Dir(abs), "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s, err := Resolve(opts)
			if err != nil {
				slog.Error("Settings reload failed", "file", event.Name, "error", err)
				continue
			}
			SetAmbient(s)
			slog.Info("Settings reloaded", "file", event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}
