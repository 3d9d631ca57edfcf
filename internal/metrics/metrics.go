// Package metrics exposes Prometheus collectors for ingestion, processing
// and model calls on a private registry.
//
// Labels are kept to small closed sets:
//
//   - outcome: added / skipped / invalid / error
//   - status:  successful / failed
//   - result:  success / transport / malformed
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Metrics struct {
	registry *prometheus.Registry

	ingested        *prometheus.CounterVec
	processed       *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	pending         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaints_ingested_total",
				Help: "Spreadsheet rows handled by the merger, by outcome.",
			},
			[]string{"outcome"},
		),
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaints_processed_total",
				Help: "Complaints moved out of Pending, by final status.",
			},
			[]string{"status"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_attempts_total",
				Help: "Individual model analysis attempts, by result.",
			},
			[]string{"result"},
		),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_request_duration_seconds",
			Help:    "Latency of model endpoint calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "complaints_pending",
			Help: "Complaints waiting for analysis at the end of the last batch.",
		}),
	}
	m.registry.MustRegister(
		m.ingested, m.processed, m.attempts, m.requestDuration, m.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncIngested(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingested.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncProcessed(status string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(status).Inc()
}

func (m *Metrics) IncAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveModelRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
