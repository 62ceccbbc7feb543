package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"skillvet/internal/archive"
	"skillvet/internal/model"
	"skillvet/internal/security"
	"skillvet/internal/semantic"
	"skillvet/internal/telemetry"

	"github.com/google/uuid"
)

// Store receives finished reports.
type Store interface {
	SaveReport(ctx context.Context, report *model.CombinedReport) error
}

// Notifier is told about packages whose report blocks execution.
type Notifier interface {
	NotifyBlocked(ctx context.Context, report *model.CombinedReport) error
}

// Input is one package to analyze.
type Input struct {
	// Name identifies the package in logs and reports, usually the file name.
	Name string
	Data []byte
	// Origin labels where the package came from (cli, api, watch).
	Origin string
}

// Pipeline wires the extractor, both analyzers and the optional hand-offs.
// It holds no per-run state and may be shared by concurrent workers.
type Pipeline struct {
	scanner  security.Scanner
	analyzer *semantic.Analyzer
	limits   archive.Options
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func WithLimits(o archive.Options) Option {
	return func(p *Pipeline) { p.limits = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline. scanner and analyzer are required.
func New(scanner security.Scanner, analyzer *semantic.Analyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		scanner:  scanner,
		analyzer: analyzer,
		limits:   archive.DefaultOptions(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run analyzes one package. The returned report is always complete; the
// error reports only a failed hand-off to the store.
func (p *Pipeline) Run(ctx context.Context, in Input) (*model.CombinedReport, error) {
	start := time.Now()
	logger := p.logger.With("package", in.Name)
	sum := sha256.Sum256(in.Data)

	res, extractErr := archive.Extract(in.Data, p.limits)
	telemetry.ObserveStage("extract", time.Since(start))
	if extractErr != nil {
		logger.Warn("Archive could not be opened", "error", extractErr)
		res = &archive.Result{}
	} else {
		for _, s := range res.SkippedFiles {
			logger.Info("File skipped", "detail", s)
		}
	}

	var (
		wg   sync.WaitGroup
		scan model.ScanReport
		sem  model.SemanticReport
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanStart := time.Now()
		if extractErr != nil {
			scan = security.ErrorReport(extractErr)
		} else {
			scan = p.scanner.Scan(res.Files())
		}
		telemetry.ObserveStage("pattern_scan", time.Since(scanStart))
	}()
	go func() {
		defer wg.Done()
		sem = p.analyzer.Analyze(ctx, res)
	}()
	wg.Wait()

	report := Aggregate(scan, sem)
	report.ID = uuid.NewString()
	report.Package = in.Name
	if res.Manifest != nil && res.Manifest.Name != "" {
		report.Package = res.Manifest.Name
	}
	report.SHA256 = hex.EncodeToString(sum[:])
	report.CreatedAt = p.now().UTC()
	if extractErr != nil {
		report.SkippedFiles = append(report.SkippedFiles, fmt.Sprintf("%s (archive could not be opened)", in.Name))
	}

	telemetry.ObserveStage("total", time.Since(start))
	telemetry.TrackScan(originOrDefault(in.Origin), report.RiskLevel)
	telemetry.TrackFindings(report.Findings)

	logger.Info("Analysis complete",
		"id", report.ID,
		"risk", report.RiskLevel,
		"score", report.Score,
		"findings", len(report.Findings),
		"block", report.BlockExecution,
		"duration", time.Since(start))

	if report.BlockExecution && p.notifier != nil {
		if err := p.notifier.NotifyBlocked(ctx, &report); err != nil {
			logger.Error("Failed to send block notification", "error", err)
		}
	}

	if p.store != nil {
		if err := p.store.SaveReport(ctx, &report); err != nil {
			return &report, fmt.Errorf("failed to save report: %w", err)
		}
	}
	return &report, nil
}

func originOrDefault(origin string) string {
	if origin == "" {
		return "cli"
	}
	return origin
}
