package telemetry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"skillvet/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillvet_scans_total",
			Help: "Total number of packages analyzed, by origin and combined risk level",
		},
		[]string{"origin", "risk"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillvet_stage_duration_seconds",
			Help:    "Duration of each analysis stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	semanticOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillvet_semantic_outcomes_total",
			Help: "Semantic analysis results by final state",
		},
		[]string{"status"},
	)
	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillvet_findings_total",
			Help: "Findings reported, by source and severity",
		},
		[]string{"source", "severity"},
	)
	validationDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skillvet_semantic_findings_dropped_total",
			Help: "Model findings removed because they named a file not in the package",
		},
	)
	validationLinesCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skillvet_semantic_lines_cleared_total",
			Help: "Model findings whose out-of-range line number was cleared",
		},
	)
	agentRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillvet_agent_requests_total",
			Help: "Model provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	agentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillvet_agent_latency_seconds",
			Help:    "Latency of model provider calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		scansTotal,
		stageDuration,
		semanticOutcomes,
		findingsTotal,
		validationDropped,
		validationLinesCleared,
		agentRequests,
		agentLatency,
	)
}

// TrackScan records one completed package analysis.
func TrackScan(origin string, risk model.RiskLevel) {
	scansTotal.WithLabelValues(origin, string(risk)).Inc()
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// TrackSemanticStatus counts the final state of a semantic analysis.
func TrackSemanticStatus(status model.SemanticStatus) {
	semanticOutcomes.WithLabelValues(string(status)).Inc()
}

// TrackFindings counts findings by source and severity.
func TrackFindings(findings []model.Finding) {
	for _, f := range findings {
		findingsTotal.WithLabelValues(string(f.Source), string(f.Severity)).Inc()
	}
}

// TrackValidation records what the validator removed or cleared.
func TrackValidation(dropped, cleared int) {
	validationDropped.Add(float64(dropped))
	validationLinesCleared.Add(float64(cleared))
}

// TrackAgentCall records one provider round trip.
func TrackAgentCall(provider string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	agentRequests.WithLabelValues(provider, outcome).Inc()
	agentLatency.WithLabelValues(provider).Observe(d.Seconds())
}

var (
	metricsMu      sync.Mutex
	metricsStarted bool
)

// StartMetricsServer exposes Prometheus metrics on port in the background.
// Calling it more than once is an error.
func StartMetricsServer(port int) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsStarted {
		return errors.New("metrics server already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port %d: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsStarted = true
	go func() {
		LogInfo("Metrics server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogError("Metrics server stopped", err)
		}
	}()
	return nil
}
