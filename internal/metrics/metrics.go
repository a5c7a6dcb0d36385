package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes recorded per engine call.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeQuota    = "quota"
	OutcomeDisabled = "disabled"
)

var (
	EngineSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_engine_searches_total",
			Help: "Search calls issued per engine, by outcome",
		},
		[]string{"engine", "outcome"},
	)

	EngineResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_engine_results_total",
			Help: "Raw results returned per engine",
		},
		[]string{"engine"},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_fetch_requests_total",
			Help: "Pages fetched by scraping engines",
		},
		[]string{"host", "status", "challenge"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arwatch_fetch_duration_seconds",
			Help:    "Duration of scraping fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_proxy_failures_total",
			Help: "Scraping requests that failed through a proxy",
		},
		[]string{"proxy_url"},
	)

	StoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_stored_total",
			Help: "Records persisted, by kind (publication, social_post)",
		},
		[]string{"kind"},
	)

	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_rejected_total",
			Help: "Analysed items not persisted, by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	SubjectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwatch_subject_failures_total",
			Help: "Subjects or handles whose processing failed",
		},
		[]string{"pipeline"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arwatch_run_duration_seconds",
			Help:    "Wall time of a complete pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"pipeline"},
	)
)

// RecordSearch counts one engine call and the results it produced.
func RecordSearch(engine, outcome string, results int) {
	EngineSearchesTotal.WithLabelValues(engine, outcome).Inc()
	if results > 0 {
		EngineResultsTotal.WithLabelValues(engine).Add(float64(results))
	}
}

// RecordFetch counts one scraping fetch. A status of 0 means the request
// never produced a response.
func RecordFetch(host string, status int, challenge string, d time.Duration) {
	statusStr := "error"
	if status > 0 {
		statusStr = strconv.Itoa(status)
	}
	FetchRequestsTotal.WithLabelValues(host, statusStr, challenge).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv  *http.Server
	addr net.Addr
}

// Start listens on the given port and exposes /metrics. Port 0 picks a free port.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, addr: ln.Addr()}, nil
}

// Addr reports the address the server is bound to.
func (s *Server) Addr() string {
	return s.addr.String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
