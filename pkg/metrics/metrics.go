// Package metrics exposes Prometheus metrics for the extraction pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
)

// Page status labels.
const (
	PageSucceeded = "succeeded"
	PageFailed    = "failed"
	PageSkipped   = "skipped"
)

// Metrics holds the pipeline collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pagesTotal        *prometheus.CounterVec
	pageDuration      prometheus.Histogram
	documentsTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_operations_total",
			Help: "Table operations dispatched, by operation type and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extractor_operation_duration_seconds",
			Help:    "Time spent applying one table operation",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"operation"}),
		pagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_pages_total",
			Help: "Pages processed, by status",
		}, []string{"status"}),
		pageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "extractor_page_duration_seconds",
			Help:    "End-to-end time to process one page",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_documents_total",
			Help: "Documents processed, by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveOperation records one dispatched operation.
func (m *Metrics) ObserveOperation(op transform.OperationType, outcome string, d time.Duration) {
	m.operationsTotal.WithLabelValues(string(op), outcome).Inc()
	m.operationDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// ObservePage records one processed page.
func (m *Metrics) ObservePage(status string, d time.Duration) {
	m.pagesTotal.WithLabelValues(status).Inc()
	if status != PageSkipped {
		m.pageDuration.Observe(d.Seconds())
	}
}

// ObserveDocument records one processed document.
func (m *Metrics) ObserveDocument(err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on port until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
