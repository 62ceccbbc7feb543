package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"skillvet/internal/model"
	"skillvet/internal/pipeline"
)

// Runner is the part of the pipeline a processor needs.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*model.CombinedReport, error)
}

// ReportProcessor runs the pipeline and writes <name>.report.json next to
// the claimed archive.
type ReportProcessor struct {
	runner Runner
	outDir string
}

// NewReportProcessor writes reports into outDir, or beside each archive
// when outDir is empty.
func NewReportProcessor(runner Runner, outDir string) *ReportProcessor {
	return &ReportProcessor{runner: runner, outDir: outDir}
}

func (p *ReportProcessor) Process(ctx context.Context, item WorkItem) (string, string, error) {
	report, err := p.runner.Run(ctx, pipeline.Input{Name: item.Name, Data: item.Data, Origin: "watch"})
	if report == nil {
		if err == nil {
			err = fmt.Errorf("no report produced")
		}
		return StatusFailed, err.Error(), err
	}

	path, werr := p.writeReport(item, report)
	if werr != nil {
		return StatusFailed, werr.Error(), werr
	}

	status := StatusDone
	if report.BlockExecution {
		status = StatusBlocked
	}
	comment := fmt.Sprintf("risk=%s score=%d findings=%d report=%s", report.RiskLevel, report.Score, len(report.Findings), path)
	if err != nil {
		// The report is complete; only persistence failed.
		comment += " store_error=" + err.Error()
	}
	return status, comment, nil
}

func (p *ReportProcessor) writeReport(item WorkItem, report *model.CombinedReport) (string, error) {
	dir := p.outDir
	if dir == "" {
		dir = filepath.Dir(item.Path)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, item.Name+".report.json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
