package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxArchiveSize bounds how much of one inbox file is read.
const DefaultMaxArchiveSize = 50 << 20

// archiveExts are the inbox file suffixes treated as package archives.
var archiveExts = []string{".tar.gz", ".tgz", ".zip", ".skill"}

// ArchiveDirPoller claims package archives dropped into a directory by
// moving them into a processed/ subdirectory.
type ArchiveDirPoller struct {
	watchDir     string
	processedDir string
	failedDir    string
	maxSize      int64

	mu       sync.Mutex
	statuses map[string]string
}

func NewArchiveDirPoller(watchDir string) (*ArchiveDirPoller, error) {
	processedDir := filepath.Join(watchDir, "processed")
	failedDir := filepath.Join(watchDir, "failed")
	for _, dir := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", filepath.Base(dir), err)
		}
	}

	return &ArchiveDirPoller{
		watchDir:     watchDir,
		processedDir: processedDir,
		failedDir:    failedDir,
		maxSize:      DefaultMaxArchiveSize,
		statuses:     make(map[string]string),
	}, nil
}

// ProcessedDir is where claimed archives and their reports end up.
func (p *ArchiveDirPoller) ProcessedDir() string {
	return p.processedDir
}

// SetMaxSize changes the per-archive read limit.
func (p *ArchiveDirPoller) SetMaxSize(n int64) {
	if n > 0 {
		p.maxSize = n
	}
}

// ArchiveName strips a known archive suffix. ok is false for other files.
func ArchiveName(file string) (string, bool) {
	lower := strings.ToLower(file)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) && len(file) > len(ext) {
			return file[:len(file)-len(ext)], true
		}
	}
	return "", false
}

// Poll claims up to limit archives in name order. Only claimed archives are
// read into memory.
func (p *ArchiveDirPoller) Poll(ctx context.Context, logger *slog.Logger, limit int) ([]WorkItem, error) {
	entries, err := os.ReadDir(p.watchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch directory: %w", err)
	}

	var items []WorkItem
	for _, entry := range entries {
		if ctx.Err() != nil || (limit > 0 && len(items) >= limit) {
			break
		}
		name, ok := ArchiveName(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}

		path := filepath.Join(p.watchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Error("[ArchiveDirPoller] Failed to stat archive", "path", path, "error", err)
			continue
		}
		if info.Size() > p.maxSize {
			logger.Warn("[ArchiveDirPoller] Archive too large, moving to failed", "path", path, "size", info.Size(), "max", p.maxSize)
			_ = os.Rename(path, filepath.Join(p.failedDir, entry.Name()))
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("[ArchiveDirPoller] Failed to read archive", "path", path, "error", err)
			continue
		}

		// Claim by moving; a file we cannot move stays in the inbox for the next poll.
		processedPath := filepath.Join(p.processedDir, entry.Name())
		if err := os.Rename(path, processedPath); err != nil {
			logger.Error("[ArchiveDirPoller] Failed to move archive", "from", path, "to", processedPath, "error", err)
			continue
		}

		logger.Info("[ArchiveDirPoller] Claimed archive", "path", processedPath, "bytes", len(data))
		items = append(items, WorkItem{ID: entry.Name(), Name: name, Path: processedPath, Data: data})
	}

	return items, nil
}

// Release moves a claimed archive back into the inbox so the next run picks
// it up again.
func (p *ArchiveDirPoller) Release(ctx context.Context, item WorkItem) error {
	dest := filepath.Join(p.watchDir, item.ID)
	if err := os.Rename(item.Path, dest); err != nil {
		return fmt.Errorf("failed to return %s to inbox: %w", item.ID, err)
	}
	return nil
}

// UpdateStatus appends the outcome to processed/status.log.
func (p *ArchiveDirPoller) UpdateStatus(ctx context.Context, item WorkItem, status string, comment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[item.ID] = status

	f, err := os.OpenFile(filepath.Join(p.processedDir, "status.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open status log: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\t%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), item.ID, status, comment)
	return err
}

// Status returns the last status recorded for an item ID.
func (p *ArchiveDirPoller) Status(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[id]
}
