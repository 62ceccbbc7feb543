// Package model holds the values that flow through one analysis run: the
// extracted files, findings and the three report shapes.
package model

import (
	"strings"
	"time"
)

// Severity classifies a single finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities; info is 0 and critical is 4.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the five known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// ParseSeverity normalizes free-form severity text. ok is false when the
// text names no known severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case "moderate":
		return SeverityMedium, true
	case "informational", "none":
		return SeverityInfo, true
	}
	return sev, sev.Valid()
}

// RiskLevel is the ordinal summary of a report.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Ordinal places the level on the scale low < medium < high < critical.
// Unknown levels sort below low.
func (r RiskLevel) Ordinal() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// ParseRiskLevel normalizes risk level text.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Ordinal() > 0
}

// MaxRisk returns the higher of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Ordinal() > a.Ordinal() {
		return b
	}
	return a
}

// RiskForSeverity maps the highest finding severity onto a risk level.
func RiskForSeverity(s Severity) RiskLevel {
	switch s {
	case SeverityCritical:
		return RiskCritical
	case SeverityHigh:
		return RiskHigh
	case SeverityMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Source records which analyzer produced a finding.
type Source string

const (
	SourcePattern  Source = "pattern"
	SourceSemantic Source = "semantic"
)

// FileRole classifies an extracted file.
type FileRole string

const (
	RoleManifest FileRole = "manifest"
	RoleScript   FileRole = "script"
	RoleOther    FileRole = "other"
)

// ExtractedFile is one text file taken from a package archive. It is built
// once per run and not modified afterwards.
type ExtractedFile struct {
	Path      string   `json:"path"`
	Content   string   `json:"content"`
	Size      int      `json:"size"`
	Role      FileRole `json:"role"`
	Truncated bool     `json:"truncated,omitempty"`

	// original is the full text of a file whose Content was cut down.
	original string
}

// NewTruncatedFile builds a file whose Content is an excerpt of full.
func NewTruncatedFile(path, excerpt, full string, role FileRole) ExtractedFile {
	return ExtractedFile{
		Path:      path,
		Content:   excerpt,
		Size:      len(full),
		Role:      role,
		Truncated: true,
		original:  full,
	}
}

// Source returns the full original text, which differs from Content only
// for truncated files.
func (f ExtractedFile) Source() string {
	if f.Truncated && f.original != "" {
		return f.original
	}
	return f.Content
}

// LineCount counts lines of Content; a trailing newline does not open a new line.
func (f ExtractedFile) LineCount() int {
	if f.Content == "" {
		return 0
	}
	n := strings.Count(f.Content, "\n")
	if !strings.HasSuffix(f.Content, "\n") {
		n++
	}
	return n
}

// Finding is one reported issue.
type Finding struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	File           string   `json:"file,omitempty"`
	Line           int      `json:"line,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Source         Source   `json:"source"`
	RuleID         string   `json:"ruleId,omitempty"`
	Harm           string   `json:"harm,omitempty"`
	Match          string   `json:"match,omitempty"`
	// Block is an explicit request from the semantic analyzer to stop execution.
	Block bool `json:"blockExecution,omitempty"`
}

// SeverityCounts is the per-severity summary of a finding set.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// CountSeverities tallies findings by severity.
func CountSeverities(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		default:
			c.Info++
		}
	}
	return c
}

// Total is the number of counted findings.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// ScanReport is the output of the deterministic pattern scanner.
type ScanReport struct {
	Score    int            `json:"score"`
	Findings []Finding      `json:"findings"`
	Summary  SeverityCounts `json:"summary"`
}

// RiskLevel derives the scanner's ordinal level from its summary. Only
// critical and high findings escalate above low.
func (r ScanReport) RiskLevel() RiskLevel {
	switch {
	case r.Summary.Critical > 0:
		return RiskCritical
	case r.Summary.High > 0:
		return RiskHigh
	default:
		return RiskLow
	}
}

// SemanticStatus records the terminal state of a semantic analysis.
type SemanticStatus string

const (
	StatusUnavailable SemanticStatus = "unavailable"
	StatusNoContent   SemanticStatus = "no_content"
	StatusValidated   SemanticStatus = "validated"
	StatusParseError  SemanticStatus = "parse_error"
	StatusError       SemanticStatus = "error"
)

// SemanticReport is the output of the LLM-driven analysis.
type SemanticReport struct {
	RiskLevel       RiskLevel      `json:"riskLevel"`
	Findings        []Finding      `json:"findings"`
	Recommendations []string       `json:"recommendations"`
	Confidence      int            `json:"confidence"`
	BlockExecution  bool           `json:"blockExecution"`
	SkippedFiles    []string       `json:"skippedFiles"`
	Summary         string         `json:"summary,omitempty"`
	Status          SemanticStatus `json:"status"`
}

// CombinedReport reconciles the pattern and semantic reports.
type CombinedReport struct {
	ID             string          `json:"id,omitempty"`
	Package        string          `json:"package,omitempty"`
	SHA256         string          `json:"sha256,omitempty"`
	RiskLevel      RiskLevel       `json:"riskLevel"`
	Findings       []Finding       `json:"findings"`
	BlockExecution bool            `json:"blockExecution"`
	SkippedFiles   []string        `json:"skippedFiles"`
	Score          int             `json:"score"`
	Confidence     int             `json:"confidence"`
	CreatedAt      time.Time       `json:"createdAt"`
	Scan           *ScanReport     `json:"scan,omitempty"`
	Semantic       *SemanticReport `json:"semantic,omitempty"`
}
