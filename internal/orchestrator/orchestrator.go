package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Orchestrator struct {
	Poller       Poller
	Processor    Processor
	PollInterval time.Duration
	Workers      int
}

func New(poller Poller, processor Processor, pollInterval time.Duration, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		Poller:       poller,
		Processor:    processor,
		PollInterval: pollInterval,
		Workers:      workers,
	}
}

// Run polls until ctx is cancelled, analyzing at most Workers items at a
// time. In-flight items finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context, logger *slog.Logger) error {
	logger.Info("Starting Orchestrator", "interval", o.PollInterval, "workers", o.Workers)
	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, o.Workers)
	var wg sync.WaitGroup

	// poll claims only as many items as there are free workers, so nothing
	// sits claimed while waiting for a slot.
	poll := func() {
		for {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			free := 1
		fill:
			for free < o.Workers {
				select {
				case sem <- struct{}{}:
					free++
				default:
					break fill
				}
			}

			logger.Debug("Polling for work...", "free_workers", free)
			items, err := o.Poller.Poll(ctx, logger, free)
			if len(items) > free {
				for _, extra := range items[free:] {
					_ = o.Poller.Release(ctx, extra)
				}
				items = items[:free]
			}
			for range free - len(items) {
				<-sem
			}
			if err != nil {
				logger.Error("Failed to poll for work", "error", err)
				return
			}
			if len(items) > 0 {
				logger.Info("Found work items", "count", len(items))
			}

			for _, item := range items {
				wg.Add(1)
				go func(item WorkItem) {
					defer wg.Done()
					defer func() { <-sem }()
					o.process(ctx, logger, item)
				}(item)
			}
			if len(items) < free {
				return
			}
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Orchestrator shutting down...")
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, item WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Processor panicked", "id", item.ID, "panic", r)
			_ = o.Poller.UpdateStatus(ctx, item, StatusFailed, "internal error")
		}
	}()

	if ctx.Err() != nil {
		if err := o.Poller.Release(context.WithoutCancel(ctx), item); err != nil {
			logger.Error("Failed to release unstarted item", "id", item.ID, "error", err)
		} else {
			logger.Info("Released unstarted item", "id", item.ID)
		}
		return
	}

	logger.Info("Analyzing package", "id", item.ID)
	status, comment, err := o.Processor.Process(ctx, item)
	if err != nil {
		logger.Error("Failed to analyze package", "id", item.ID, "error", err)
	} else {
		logger.Info("Package analyzed", "id", item.ID, "status", status)
	}
	if uerr := o.Poller.UpdateStatus(ctx, item, status, comment); uerr != nil {
		logger.Warn("Failed to update status", "id", item.ID, "error", uerr)
	}
}
