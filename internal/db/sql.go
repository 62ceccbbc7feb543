package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"skillvet/internal/model"
)

// sqlStore holds the queries shared by the SQLite and Postgres stores.
// Queries are written with '?' placeholders and rebound for Postgres.
type sqlStore struct {
	db          *sql.DB
	dollarBinds bool
}

func (s *sqlStore) q(query string) string {
	if !s.dollarBinds {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// SaveReport inserts or replaces a report.
func (s *sqlStore) SaveReport(ctx context.Context, r *model.CombinedReport) error {
	if r.ID == "" {
		return errors.New("report id is required")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `INSERT INTO reports (id, package, sha256, risk_level, risk_rank, score, block_execution, findings_count, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			package = excluded.package,
			sha256 = excluded.sha256,
			risk_level = excluded.risk_level,
			risk_rank = excluded.risk_rank,
			score = excluded.score,
			block_execution = excluded.block_execution,
			findings_count = excluded.findings_count,
			created_at = excluded.created_at,
			body = excluded.body`
	_, err = s.db.ExecContext(ctx, s.q(query),
		r.ID, r.Package, r.SHA256, string(r.RiskLevel), r.RiskLevel.Ordinal(), r.Score,
		r.BlockExecution, len(r.Findings), created.UTC(), string(body))
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

// GetReport loads one report by id.
func (s *sqlStore) GetReport(ctx context.Context, id string) (*model.CombinedReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT body FROM reports WHERE id = ?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}

	var r model.CombinedReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &r, nil
}

// ListReports returns the most recent report summaries, newest first.
func (s *sqlStore) ListReports(ctx context.Context, opts ListOptions) ([]ReportSummary, error) {
	var where []string
	var args []any
	if opts.MinRisk.Ordinal() > 0 {
		where = append(where, "risk_rank >= ?")
		args = append(args, opts.MinRisk.Ordinal())
	}
	if opts.BlockedOnly {
		where = append(where, "block_execution = ?")
		args = append(args, true)
	}
	if opts.SHA256 != "" {
		where = append(where, "sha256 = ?")
		args = append(args, opts.SHA256)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, package, sha256, risk_level, score, block_execution, findings_count, created_at FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	results := []ReportSummary{}
	for rows.Next() {
		var rs ReportSummary
		var risk string
		if err := rows.Scan(&rs.ID, &rs.Package, &rs.SHA256, &risk, &rs.Score, &rs.BlockExecution, &rs.Findings, &rs.CreatedAt); err != nil {
			return nil, err
		}
		rs.RiskLevel = model.RiskLevel(risk)
		results = append(results, rs)
	}
	return results, rows.Err()
}

// Cleanup deletes reports created before cutoff.
func (s *sqlStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM reports WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up reports: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqlStore) exec(queries ...string) error {
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
