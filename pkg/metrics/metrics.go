// Package metrics exposes swarmclientd's Prometheus counters and
// gauges, and the loopback HTTP server that serves them, the same way
// the teacher's server binary mounts promhttp.Handler() (spec.md
// §2.2/§2.3's "Additional components this expansion adds").
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Registry holds every metric swarmclientd records, collected on its
// own prometheus.Registry rather than the global default so a client
// library embedding this package never leaks metrics into a host
// process's own registry.
type Registry struct {
	reg *prometheus.Registry

	OnionRequestsTotal    *prometheus.CounterVec
	OnionRequestRetries   prometheus.Counter
	OnionRequestFailures  *prometheus.CounterVec
	SwarmResolutionsTotal *prometheus.CounterVec
	BatchSize             prometheus.Histogram
	BatchFlushesTotal     prometheus.Counter
	ConfigPushesTotal     *prometheus.CounterVec
	ConfigMergesTotal     *prometheus.CounterVec
	MessagesReceivedTotal *prometheus.CounterVec
	GroupSubtreesRunning  prometheus.Gauge
}

// New builds a Registry with every metric registered under the
// swarmclient_ namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		OnionRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "onion_requests_total",
			Help:      "Onion-routed requests sent, by destination kind.",
		}, []string{"destination"}),
		OnionRequestRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "onion_request_retries_total",
			Help:      "Onion requests retried against another swarm node after a failure.",
		}),
		OnionRequestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "onion_request_failures_total",
			Help:      "Onion requests that ultimately failed, by error kind.",
		}, []string{"kind"}),
		SwarmResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "swarm_resolutions_total",
			Help:      "Swarm working-set resolutions, by outcome.",
		}, []string{"outcome"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swarmclient",
			Name:      "batch_size",
			Help:      "Number of sub-requests coalesced into one batch flush.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		BatchFlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "batch_flushes_total",
			Help:      "Batch windows flushed to the swarm.",
		}),
		ConfigPushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "config_pushes_total",
			Help:      "Config object store pushes attempted, by variant and outcome.",
		}, []string{"variant", "outcome"}),
		ConfigMergesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "config_merges_total",
			Help:      "Config object merges applied, by variant.",
		}, []string{"variant"}),
		MessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmclient",
			Name:      "messages_received_total",
			Help:      "Decrypted messages delivered, by conversation kind.",
		}, []string{"kind"}),
		GroupSubtreesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmclient",
			Name:      "group_subtrees_running",
			Help:      "Group config/message subtrees currently running.",
		}),
	}

	reg.MustRegister(
		r.OnionRequestsTotal,
		r.OnionRequestRetries,
		r.OnionRequestFailures,
		r.SwarmResolutionsTotal,
		r.BatchSize,
		r.BatchFlushesTotal,
		r.ConfigPushesTotal,
		r.ConfigMergesTotal,
		r.MessagesReceivedTotal,
		r.GroupSubtreesRunning,
	)
	return r
}

// RecordResolution, RecordOnionRequest, RecordDispatchRetry and
// RecordDispatchFailure satisfy swarmmgr.MetricsRecorder structurally,
// so a *Registry can be handed to (*swarmmgr.Manager).SetMetrics
// without this package importing swarmmgr.
func (r *Registry) RecordResolution(outcome string) {
	r.SwarmResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordOnionRequest(destination string) {
	r.OnionRequestsTotal.WithLabelValues(destination).Inc()
}

func (r *Registry) RecordDispatchRetry() {
	r.OnionRequestRetries.Inc()
}

func (r *Registry) RecordDispatchFailure(kind string) {
	r.OnionRequestFailures.WithLabelValues(kind).Inc()
}

// RecordFlush satisfies batch.MetricsRecorder.
func (r *Registry) RecordFlush(size int) {
	r.BatchSize.Observe(float64(size))
	r.BatchFlushesTotal.Inc()
}

// Server serves the registry's metrics on a loopback diagnostics
// address, mirroring the teacher's /metrics route but as its own
// dedicated mux rather than sharing one with inbound swarm traffic,
// since swarmclientd is a client process with no public route table.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer builds a Server bound to listenAddress, not yet listening.
func NewServer(reg *Registry, listenAddress string, log *logrus.Entry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.reg, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{Addr: listenAddress, Handler: mux},
		log:        log.WithField("component", "metrics"),
	}
}

// Run listens and serves until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("metrics server shutdown error")
		}
		return nil
	}
}
