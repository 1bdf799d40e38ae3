package auth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Source yields the secret currently in force.
type Source interface {
	Current() string
}

// Static is a fixed secret.
type Static string

func (s Static) Current() string { return string(s) }

// Reloader serves the secret from disk and picks up rotations made by
// another process (beacon rotate-secret) without a restart.
type Reloader struct {
	path string

	mu     sync.RWMutex
	secret string
}

// NewReloader loads the secret at path, creating one if needed.
func NewReloader(path string) (*Reloader, error) {
	secret, err := LoadOrCreateSecret(path)
	if err != nil {
		return nil, err
	}
	return &Reloader{path: path, secret: secret}, nil
}

func (r *Reloader) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.secret
}

// Reload re-reads the file. A missing or empty file keeps the old secret.
func (r *Reloader) Reload() error {
	secret, err := ReadSecret(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	changed := secret != r.secret
	r.secret = secret
	r.mu.Unlock()

	if changed {
		slog.Info("secret reloaded", "path", r.path)
	}
	return nil
}

// Watch reloads on every change to the secret file until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create secret watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	name := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				slog.Debug("secret reload skipped", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("secret watcher error", "error", err)
		}
	}
}
