// Package pipeline runs both analyzers over one package and reconciles
// their reports.
package pipeline

import (
	"skillvet/internal/model"
)

// Aggregate combines a pattern report and a semantic report. The risk level
// is the higher of the two, blocking follows the semantic report alone, and
// findings are concatenated without deduplication, pattern findings first.
func Aggregate(scan model.ScanReport, sem model.SemanticReport) model.CombinedReport {
	findings := make([]model.Finding, 0, len(scan.Findings)+len(sem.Findings))
	findings = append(findings, scan.Findings...)
	findings = append(findings, sem.Findings...)

	skipped := append([]string{}, sem.SkippedFiles...)

	semRisk := sem.RiskLevel
	if semRisk.Ordinal() == 0 {
		semRisk = model.RiskLow
	}

	return model.CombinedReport{
		RiskLevel:      model.MaxRisk(scan.RiskLevel(), semRisk),
		Findings:       findings,
		BlockExecution: sem.BlockExecution,
		SkippedFiles:   skipped,
		Score:          scan.Score,
		Confidence:     sem.Confidence,
		Scan:           &scan,
		Semantic:       &sem,
	}
}
