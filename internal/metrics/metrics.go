// Package metrics holds the Prometheus collectors navsync exposes. Each
// Metrics value owns its registry so tests and multiple instances never share
// global state.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "navsync"

type Metrics struct {
	Registry *prometheus.Registry

	// SourceRequests counts HTTP calls to the music server by endpoint and outcome.
	SourceRequests *prometheus.CounterVec
	// PresenceUpdates counts publish decisions: published, skipped, cleared, failed.
	PresenceUpdates *prometheus.CounterVec
	// CoverResults counts cover pipeline outcomes.
	CoverResults *prometheus.CounterVec
	// CacheLookups counts hits and misses per cache.
	CacheLookups *prometheus.CounterVec
	// PollFailures counts consecutive-failure increments of the sync loop.
	PollFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Requests sent to the music server.",
		}, []string{"endpoint", "outcome"}),
		PresenceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_updates_total",
			Help:      "Presence publish decisions.",
		}, []string{"result"}),
		CoverResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_results_total",
			Help:      "Cover art pipeline outcomes.",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Polls that returned no response from the music server.",
		}),
	}
	m.Registry.MustRegister(m.SourceRequests, m.PresenceUpdates, m.CoverResults, m.CacheLookups, m.PollFailures)
	return m
}

// CacheHit and CacheMiss are nil-safe so components can run without metrics.
func (m *Metrics) CacheHit(cache string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(cache, "hit").Inc()
	}
}

func (m *Metrics) CacheMiss(cache string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(cache, "miss").Inc()
	}
}

func (m *Metrics) SourceRequest(endpoint, outcome string) {
	if m != nil {
		m.SourceRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}

func (m *Metrics) Presence(result string) {
	if m != nil {
		m.PresenceUpdates.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Cover(result string) {
	if m != nil {
		m.CoverResults.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) PollFailed() {
	if m != nil {
		m.PollFailures.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
