// Package web exposes the analysis pipeline and stored reports over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"skillvet/internal/db"
	"skillvet/internal/metrics"
	"skillvet/internal/model"
	"skillvet/internal/orchestrator"
	"skillvet/internal/pipeline"
)

// DefaultMaxUpload bounds the size of an uploaded archive.
const DefaultMaxUpload = 20 << 20

// Runner is the part of the pipeline the server needs.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*model.CombinedReport, error)
}

// Server handles the HTTP API.
type Server struct {
	runner    Runner
	store     db.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
	port      int
	maxUpload int64
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the report endpoints.
func WithStore(store db.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics replaces the default-registry metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxUpload sets the largest accepted archive in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewServer creates a new web server
func NewServer(runner Runner, port int, opts ...Option) *Server {
	s := &Server{
		runner:    runner,
		port:      port,
		maxUpload: DefaultMaxUpload,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics(nil)
	}
	return s
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Track(pattern, h))
	}

	route("POST /api/scan", s.handleScan)
	route("GET /api/reports", s.handleListReports)
	route("GET /api/reports/{id}", s.handleGetReport)
	route("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	data, name, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("archive exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty archive")
		return
	}
	if q := r.URL.Query().Get("name"); q != "" {
		name = q
	}

	done := s.metrics.ObserveUpload(len(data))
	defer done()

	report, err := s.runner.Run(r.Context(), pipeline.Input{Name: name, Data: data, Origin: "api"})
	if report == nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	if err != nil {
		// The analysis itself is complete; only persistence failed.
		s.logger.Warn("Report not persisted", "id", report.ID, "error", err)
		w.Header().Set("X-Skillvet-Store-Error", "true")
	}
	writeJSON(w, http.StatusOK, report)
}

// readUpload accepts either a multipart form with a "file" field or the raw
// archive as the request body.
func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, "upload", err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("missing form file %q", "file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	name, ok := orchestrator.ArchiveName(filepath.Base(header.Filename))
	if !ok {
		name = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	return data, name, nil
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}

	q := r.URL.Query()
	opts := db.ListOptions{SHA256: q.Get("sha256")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("min_risk"); v != "" {
		level, ok := model.ParseRiskLevel(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "min_risk must be low, medium, high or critical")
			return
		}
		opts.MinRisk = level
	}
	if v := q.Get("blocked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "blocked must be a boolean")
			return
		}
		opts.BlockedOnly = b
	}

	reports, err := s.store.ListReports(r.Context(), opts)
	if err != nil {
		s.logger.Error("Failed to list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []db.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}

	report, err := s.store.GetReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load report", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
