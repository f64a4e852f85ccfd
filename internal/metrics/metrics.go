// Package metrics exposes Prometheus counters for the ingestion pipeline
// and, when configured, serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the pipeline counters. All methods are safe for concurrent
// use; a nil *Metrics is a no-op so callers never need to branch.
type Metrics struct {
	beaconEvents        *prometheus.CounterVec
	presenceTransitions *prometheus.CounterVec
	webhookDeliveries   *prometheus.CounterVec
	ingestErrors        prometheus.Counter
}

// New registers the pipeline counters on a fresh registry and returns both.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		beaconEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthwatch_beacon_events_total",
			Help: "Beacon events ingested, by sniffer source.",
		}, []string{"source"}),
		presenceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthwatch_presence_transitions_total",
			Help: "Presence transitions detected, by direction.",
		}, []string{"event"}),
		webhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthwatch_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		ingestErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearthwatch_ingest_errors_total",
			Help: "Beacon events that failed to ingest.",
		}),
	}, reg
}

// BeaconEvent counts one ingested sighting.
func (m *Metrics) BeaconEvent(source string) {
	if m == nil {
		return
	}
	m.beaconEvents.WithLabelValues(source).Inc()
}

// PresenceTransition counts one arrive/depart edge.
func (m *Metrics) PresenceTransition(event string) {
	if m == nil {
		return
	}
	m.presenceTransitions.WithLabelValues(event).Inc()
}

// WebhookDelivery counts one delivery attempt.
func (m *Metrics) WebhookDelivery(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
}

// IngestError counts one dropped sighting.
func (m *Metrics) IngestError() {
	if m == nil {
		return
	}
	m.ingestErrors.Inc()
}

// Server serves /metrics for a registry on its own listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates the metrics HTTP server. addr is the listen address,
// e.g. ":9090".
func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	s.logger.Info("metrics listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
