package db

import (
	"context"
	"errors"
	"time"

	"skillvet/internal/model"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("report not found")

// ReportSummary is the list view of a stored report.
type ReportSummary struct {
	ID             string          `json:"id"`
	Package        string          `json:"package"`
	SHA256         string          `json:"sha256"`
	RiskLevel      model.RiskLevel `json:"riskLevel"`
	Score          int             `json:"score"`
	BlockExecution bool            `json:"blockExecution"`
	Findings       int             `json:"findings"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ListOptions filters ListReports.
type ListOptions struct {
	// Limit caps the result count; zero means DefaultListLimit.
	Limit int
	// MinRisk keeps reports at or above this level.
	MinRisk model.RiskLevel
	// BlockedOnly keeps reports that block execution.
	BlockedOnly bool
	// SHA256 keeps reports for one archive.
	SHA256 string
}

// DefaultListLimit is used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// Store interface defines the methods for persistent storage
type Store interface {
	Close() error
	SaveReport(ctx context.Context, report *model.CombinedReport) error
	GetReport(ctx context.Context, id string) (*model.CombinedReport, error)
	ListReports(ctx context.Context, opts ListOptions) ([]ReportSummary, error)
	// Cleanup deletes reports created before cutoff and returns how many.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}
