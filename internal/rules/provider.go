package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Provider supplies the catalog for one analysis run.
type Provider interface {
	Catalog(ctx context.Context) (*Catalog, error)
}

// Static always returns the same catalog.
type Static struct {
	C *Catalog
}

func (s Static) Catalog(ctx context.Context) (*Catalog, error) {
	if s.C == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	return s.C, nil
}

// Resolve fetches the run's catalog, falling back to the built-in one when
// no provider is configured or it fails.
func Resolve(ctx context.Context, p Provider, logger *slog.Logger) *Catalog {
	if p == nil {
		return Default()
	}
	c, err := p.Catalog(ctx)
	if err != nil || c == nil {
		if logger != nil {
			logger.Warn("Rule catalog unavailable, using builtin rules", "error", err)
		}
		return Default()
	}
	return c
}

// FileProvider serves a catalog loaded from an operator file. Watch keeps it
// current; every run still receives an immutable snapshot.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Catalog
}

// NewFileProvider loads path once; the file must be valid at startup.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{path: path, logger: logger, current: c}, nil
}

func (p *FileProvider) Catalog(ctx context.Context) (*Catalog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

// Reload re-reads the file. A broken file keeps the previous catalog.
func (p *FileProvider) Reload() error {
	c, err := LoadFile(p.path)
	if err != nil {
		p.logger.Error("Rule catalog reload failed, keeping previous rules", "path", p.path, "error", err)
		return err
	}
	p.mu.Lock()
	p.current = c
	p.mu.Unlock()
	p.logger.Info("Rule catalog reloaded", "path", p.path, "rules", c.Len())
	return nil
}

// Watch reloads the catalog when its file changes until ctx is done. The
// parent directory is watched so editors that replace the file are handled.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start rule watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.path, err)
	}

	target := filepath.Clean(p.path)
	var timer *time.Timer
	debounce := 300 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() { _ = p.Reload() })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("Rule watcher error", "error", err)
		}
	}
}
