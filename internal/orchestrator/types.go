// Package orchestrator feeds package archives from an inbox directory into
// the analysis pipeline with bounded concurrency.
package orchestrator

import (
	"context"
	"log/slog"
)

// Status values reported back to a Poller.
const (
	StatusDone    = "Done"
	StatusBlocked = "Blocked"
	StatusFailed  = "Failed"
)

// WorkItem is one archive waiting to be analyzed.
type WorkItem struct {
	ID   string // file name in the inbox
	Name string // package name derived from the file name
	Path string // where the archive lives after it was claimed
	Data []byte
}

// Poller discovers work.
type Poller interface {
	// Poll claims and returns at most limit new items; limit <= 0 means no
	// limit. A claimed item is not returned again unless it is released.
	Poll(ctx context.Context, logger *slog.Logger, limit int) ([]WorkItem, error)
	// UpdateStatus records the outcome of an item.
	UpdateStatus(ctx context.Context, item WorkItem, status string, comment string) error
	// Release hands back a claimed item that was never processed.
	Release(ctx context.Context, item WorkItem) error
}

// Processor analyzes one item and returns the status to report.
type Processor interface {
	Process(ctx context.Context, item WorkItem) (status string, comment string, err error)
}
