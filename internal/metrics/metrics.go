// Package metrics exposes Prometheus counters for edits and snapshot
// operations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
)

// Metrics holds the agent's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	patches       *prometheus.CounterVec
	snapshotOps   *prometheus.CounterVec
	applyOutcomes *prometheus.CounterVec
	copySeconds   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swgconf_patches_total",
			Help: "Lua value patches by result (success, noop, failure).",
		}, []string{"result"}),
		snapshotOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swgconf_snapshot_ops_total",
			Help: "Snapshot store operations by operation and result.",
		}, []string{"op", "result"}),
		applyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swgconf_apply_outcomes_total",
			Help: "Snapshot apply outcomes (full, partial, failed).",
		}, []string{"outcome"}),
		copySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swgconf_snapshot_copy_seconds",
			Help:    "Time spent copying snapshot trees.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.patches, m.snapshotOps, m.applyOutcomes, m.copySeconds)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PatchResult(result string) {
	m.patches.WithLabelValues(result).Inc()
}

// SnapshotOp counts one store operation, failed when err is not nil.
func (m *Metrics) SnapshotOp(op string, err error) {
	result := _const.ResultSuccess
	if err != nil {
		result = _const.ResultFailure
	}
	m.snapshotOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ApplyOutcome(outcome string) {
	m.applyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCopy(op string, d time.Duration) {
	m.copySeconds.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the listener.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: _const.DefaultWaitTime,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), _const.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown failed: %v", err)
		}
	}()

	log.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
