// Package metrics exposes Prometheus collectors for the monitoring pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Read results.
const (
	ResultOK        = "ok"
	ResultNetwork   = "network"
	ResultRejected  = "rejected"
	ResultMalformed = "malformed"
)

// Metrics collects Prometheus metrics for the client.
type Metrics struct {
	pollCycles    *prometheus.CounterVec
	pollReads     *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	ticksSkipped  prometheus.Counter
	historyWrites *prometheus.CounterVec
	alertActive   prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// New returns the process-wide metrics collector.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			pollCycles: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nexusflow_poll_cycles_total",
					Help: "Poll cycles by outcome",
				},
				[]string{"outcome"},
			),
			pollReads: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nexusflow_poll_reads_total",
					Help: "Remote reads by endpoint and result",
				},
				[]string{"endpoint", "result"},
			),
			cycleDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "nexusflow_poll_cycle_duration_seconds",
					Help:    "Wall time of one poll cycle",
					Buckets: prometheus.DefBuckets,
				},
			),
			ticksSkipped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "nexusflow_poll_ticks_skipped_total",
					Help: "Ticks dropped because the previous cycle was still in flight",
				},
			),
			historyWrites: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nexusflow_history_writes_total",
					Help: "History appends by result",
				},
				[]string{"result"},
			),
			alertActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "nexusflow_alert_active",
					Help: "Error alert state (1 = active, 0 = inactive)",
				},
			),
		}
	})
	return metricsInst
}

// RecordCycle records a completed poll cycle.
func (m *Metrics) RecordCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.pollCycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// RecordRead records one remote read.
func (m *Metrics) RecordRead(endpoint, result string) {
	if m == nil {
		return
	}
	m.pollReads.WithLabelValues(endpoint, result).Inc()
}

// RecordSkippedTick records a tick dropped while a cycle was in flight.
func (m *Metrics) RecordSkippedTick() {
	if m == nil {
		return
	}
	m.ticksSkipped.Inc()
}

// RecordHistoryWrite records a history append attempt: ok, error or dropped.
func (m *Metrics) RecordHistoryWrite(result string) {
	if m == nil {
		return
	}
	m.historyWrites.WithLabelValues(result).Inc()
}

// SetAlert updates the alert gauge.
func (m *Metrics) SetAlert(active bool) {
	if m == nil {
		return
	}
	if active {
		m.alertActive.Set(1)
	} else {
		m.alertActive.Set(0)
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
