// Package metrics exposes the broker's Prometheus instrumentation,
// grounded in the teacher's metrics.go: collectors registered on a
// Registry, served over a side HTTP listener via promhttp.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry wraps every broker metric behind small recording methods so
// callers never touch a prometheus type directly.
type Registry struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	disconnectsTotal  *prometheus.CounterVec
	connDuration      prometheus.Histogram

	subscriptionsActive prometheus.Gauge
	publicationsTotal   prometheus.Counter
	messagesDelivered   prometheus.Counter

	instructionsDropped *prometheus.CounterVec
	workerQueueDepth    *prometheus.GaugeVec

	acceptsRejected prometheus.Counter

	cpuPercent       prometheus.Gauge
	memoryUsedBytes  prometheus.Gauge
	memoryLimitBytes prometheus.Gauge

	gatherer *prometheus.Registry
}

// NewRegistry builds and registers all broker collectors on a fresh,
// private prometheus.Registry (not the global DefaultRegisterer) so
// multiple Registry instances can coexist, e.g. one per test.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()

	reg := &Registry{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odin_connections_total",
			Help: "Total TCP connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odin_connections_active",
			Help: "Currently open connections.",
		}),
		disconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odin_disconnects_total",
			Help: "Disconnections by reason.",
		}, []string{"reason"}),
		connDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "odin_connection_duration_seconds",
			Help:    "Connection lifetime before disconnect.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odin_subscriptions_active",
			Help: "Currently active subscriptions across all workers.",
		}),
		publicationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odin_publications_total",
			Help: "Total publications accepted from clients.",
		}),
		messagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odin_messages_delivered_total",
			Help: "Total MSG/HMSG frames written to subscribers.",
		}),
		instructionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odin_instructions_dropped_total",
			Help: "Inter-worker instructions dropped because a peer's channel was full.",
		}, []string{"kind"}),
		workerQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odin_worker_instruction_queue_depth",
			Help: "Pending instructions queued for each worker.",
		}, []string{"worker"}),
		acceptsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odin_accepts_rejected_total",
			Help: "Connection attempts rejected by the accept rate limiter.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odin_cpu_percent",
			Help: "Process CPU usage percent as reported by gopsutil.",
		}),
		memoryUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odin_memory_used_bytes",
			Help: "Process resident memory in bytes.",
		}),
		memoryLimitBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odin_memory_limit_bytes",
			Help: "Detected cgroup memory limit in bytes, 0 if unconstrained.",
		}),
		gatherer: prom,
	}

	prom.MustRegister(
		reg.connectionsTotal,
		reg.connectionsActive,
		reg.disconnectsTotal,
		reg.connDuration,
		reg.subscriptionsActive,
		reg.publicationsTotal,
		reg.messagesDelivered,
		reg.instructionsDropped,
		reg.workerQueueDepth,
		reg.acceptsRejected,
		reg.cpuPercent,
		reg.memoryUsedBytes,
		reg.memoryLimitBytes,
	)

	return reg
}

func (r *Registry) ConnectionOpened() {
	r.connectionsTotal.Inc()
	r.connectionsActive.Inc()
}

func (r *Registry) ConnectionClosed(reason string, lifetime time.Duration) {
	r.connectionsActive.Dec()
	r.disconnectsTotal.WithLabelValues(reason).Inc()
	r.connDuration.Observe(lifetime.Seconds())
}

func (r *Registry) SubscriptionCreated() { r.subscriptionsActive.Inc() }
func (r *Registry) SubscriptionRemoved() { r.subscriptionsActive.Dec() }
func (r *Registry) PublicationReceived() { r.publicationsTotal.Inc() }
func (r *Registry) MessageDelivered()    { r.messagesDelivered.Inc() }
func (r *Registry) AcceptRejected()      { r.acceptsRejected.Inc() }

func (r *Registry) InstructionDropped(kind string) {
	r.instructionsDropped.WithLabelValues(kind).Inc()
}

func (r *Registry) WorkerQueueDepth(worker string, depth int) {
	r.workerQueueDepth.WithLabelValues(worker).Set(float64(depth))
}

func (r *Registry) CPUPercent(pct float64) { r.cpuPercent.Set(pct) }

func (r *Registry) MemoryUsage(usedBytes, limitBytes int64) {
	r.memoryUsedBytes.Set(float64(usedBytes))
	r.memoryLimitBytes.Set(float64(limitBytes))
}

// Server serves /metrics for a Prometheus scraper, grounded in the
// teacher's own promhttp wiring in metrics.go.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

func NewServer(addr string, reg *Registry, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.gatherer, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
