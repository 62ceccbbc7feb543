// Package semantic runs the model-driven analysis of a skill package and
// always returns a well-formed report, whatever the model does.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"skillvet/internal/agent"
	"skillvet/internal/archive"
	"skillvet/internal/hotspot"
	"skillvet/internal/model"
	"skillvet/internal/rules"
	"skillvet/internal/telemetry"
)

// State is a step of one semantic analysis.
type State int

const (
	StateUnavailable State = iota
	StateNoContent
	StateAnalyzing
	StateParsed
	StateValidated
	StateParseError
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateNoContent:
		return "no_analyzable_content"
	case StateAnalyzing:
		return "analyzing"
	case StateParsed:
		return "parsed"
	case StateValidated:
		return "validated"
	case StateParseError:
		return "parse_error"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 4096
)

// Analyzer is the semantic analysis entry point. It is safe for concurrent
// use; every call works on its own values.
type Analyzer struct {
	agent     agent.Agent
	rules     rules.Provider
	logger    *slog.Logger
	timeout   time.Duration
	maxTokens int
	enabled   bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRules sets the rule catalog source. Without it the built-in catalog is used.
func WithRules(p rules.Provider) Option {
	return func(a *Analyzer) { a.rules = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithTimeout bounds the model call.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxTokens caps the model's output.
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithEnabled turns semantic analysis on or off.
func WithEnabled(enabled bool) Option {
	return func(a *Analyzer) { a.enabled = enabled }
}

// NewAnalyzer builds an analyzer around client. A nil client makes every
// analysis report unavailable.
func NewAnalyzer(client agent.Agent, opts ...Option) *Analyzer {
	a := &Analyzer{
		agent:     client,
		timeout:   DefaultTimeout,
		maxTokens: DefaultMaxTokens,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Available reports whether a model call would be attempted.
func (a *Analyzer) Available() bool {
	return a.enabled && a.agent != nil
}

// AnalyzeArchive extracts data and analyzes the result. An archive that
// cannot be opened counts as having no analyzable content.
func (a *Analyzer) AnalyzeArchive(ctx context.Context, data []byte, opts archive.Options) model.SemanticReport {
	if !a.Available() {
		return a.finish(StateUnavailable, unavailableReport(nil))
	}
	res, err := archive.Extract(data, opts)
	if err != nil {
		a.logger.Warn("Archive could not be opened for semantic analysis", "error", err)
		res = &archive.Result{}
	}
	return a.Analyze(ctx, res)
}

// Analyze runs the state machine over an extraction result. It never
// panics and never returns an error; failures become degraded reports.
func (a *Analyzer) Analyze(ctx context.Context, res *archive.Result) (report model.SemanticReport) {
	if res == nil {
		res = &archive.Result{}
	}
	skipped := res.SkippedFiles

	defer func() {
		if r := recover(); r != nil {
			report = a.finish(StateError, errorReport(fmt.Errorf("panic during semantic analysis: %v", r), skipped))
		}
	}()

	if !a.Available() {
		return a.finish(StateUnavailable, unavailableReport(skipped))
	}
	if res.Empty() {
		return a.finish(StateNoContent, noContentReport(skipped))
	}

	start := time.Now()
	defer func() { telemetry.ObserveStage("semantic", time.Since(start)) }()

	files := res.Files()
	for _, h := range hotspot.Detect(files, hotspot.DefaultLimit) {
		a.logger.Debug("Hotspot", "file", h.File, "line", h.Line, "pattern", h.Pattern, "context", h.Context)
	}

	catalog := rules.Resolve(ctx, a.rules, a.logger)
	manifestLike := append(append([]model.ExtractedFile{}, res.ManifestFiles...), res.OtherFiles...)
	prompt, err := BuildPrompt(manifestLike, res.ScriptFiles, catalog)
	if err != nil {
		return a.finish(StateError, errorReport(err, skipped))
	}

	a.logger.Info("Semantic analysis started",
		"state", StateAnalyzing.String(),
		"files", len(files),
		"rules", catalog.Len(),
		"rule_source", catalog.Source(),
		"prompt_tokens", agent.EstimateTokenCount(prompt.System)+agent.EstimateTokenCount(prompt.User))

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.agent.Analyze(callCtx, prompt.System, prompt.User, a.maxTokens)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("semantic analysis timed out after %s: %w", a.timeout, err)
		}
		return a.finish(StateError, errorReport(err, skipped))
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		a.logger.Warn("Could not parse semantic analysis response", "error", err, "response_len", len(raw))
		return a.finish(StateParseError, parseFallbackReport(err, skipped))
	}
	report = verdict.ToReport()
	a.logger.Debug("Semantic response parsed", "state", StateParsed.String(), "findings", len(report.Findings))

	var stats ValidationStats
	report.Findings, stats = Validate(report.Findings, files, a.logger)
	telemetry.TrackValidation(stats.Dropped, stats.LinesCleared)

	report.BlockExecution = ShouldBlock(report.Findings)
	report.SkippedFiles = nonNil(skipped)
	report.Status = model.StatusValidated
	return a.finish(StateValidated, report)
}

func (a *Analyzer) finish(state State, report model.SemanticReport) model.SemanticReport {
	if report.Findings == nil {
		report.Findings = []model.Finding{}
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	if report.SkippedFiles == nil {
		report.SkippedFiles = []string{}
	}
	telemetry.TrackSemanticStatus(report.Status)
	a.logger.Info("Semantic analysis finished",
		"state", state.String(),
		"status", report.Status,
		"risk", report.RiskLevel,
		"findings", len(report.Findings),
		"block", report.BlockExecution,
		"confidence", report.Confidence)
	return report
}

func unavailableReport(skipped []string) model.SemanticReport {
	return model.SemanticReport{
		RiskLevel: model.RiskMedium,
		Findings: []model.Finding{{
			Severity:       model.SeverityMedium,
			Category:       "AI Analysis Unavailable",
			Title:          "AI Analysis Unavailable",
			Description:    "Semantic analysis is disabled or no model credentials are configured. Only pattern-based checks were applied.",
			Recommendation: "Configure an AI provider and API key to enable semantic analysis, or review the package manually.",
			Source:         model.SourceSemantic,
		}},
		Recommendations: []string{"Review the package manually before allowing execution."},
		Confidence:      30,
		SkippedFiles:    nonNil(skipped),
		Status:          model.StatusUnavailable,
	}
}

func noContentReport(skipped []string) model.SemanticReport {
	return model.SemanticReport{
		RiskLevel:    model.RiskLow,
		Findings:     []model.Finding{},
		Confidence:   90,
		SkippedFiles: nonNil(skipped),
		Summary:      "No analyzable text files were found in the package.",
		Status:       model.StatusNoContent,
	}
}

func errorReport(err error, skipped []string) model.SemanticReport {
	return model.SemanticReport{
		RiskLevel: model.RiskMedium,
		Findings: []model.Finding{{
			Severity:       model.SeverityMedium,
			Category:       "Analysis Error",
			Title:          "Semantic analysis failed",
			Description:    err.Error(),
			Recommendation: "Retry the analysis or review the package manually.",
			Source:         model.SourceSemantic,
		}},
		Recommendations: []string{"Review the package manually before allowing execution."},
		Confidence:      40,
		SkippedFiles:    nonNil(skipped),
		Status:          model.StatusError,
	}
}

func parseFallbackReport(err error, skipped []string) model.SemanticReport {
	return model.SemanticReport{
		RiskLevel: model.RiskMedium,
		Findings: []model.Finding{{
			Severity:       model.SeverityMedium,
			Category:       "Analysis Error",
			Title:          "Could not parse analysis response",
			Description:    fmt.Sprintf("The model response could not be parsed: %v", err),
			Recommendation: "Retry the analysis or review the package manually.",
			Source:         model.SourceSemantic,
		}},
		Recommendations: []string{"Review the package manually before allowing execution."},
		Confidence:      50,
		SkippedFiles:    nonNil(skipped),
		Status:          model.StatusParseError,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
