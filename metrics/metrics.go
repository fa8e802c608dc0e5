// Package metrics exposes the gateway counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway counters. A nil *Metrics discards every update.
type Metrics struct {
	readingsSubmitted    prometheus.Counter
	readingsDropped      prometheus.Counter
	ensureReadyFailures  *prometheus.CounterVec
	anchors              *prometheus.CounterVec
	verificationFailures prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readingsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_submitted_total",
			Help:      "Readings accepted into the anchoring queue.",
		}),
		readingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Readings dropped because the anchoring queue was full.",
		}),
		ensureReadyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ensure_ready_failures_total",
			Help:      "Device contexts that did not reach Ready, by reason.",
		}, []string{"reason"}),
		anchors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchors_total",
			Help:      "Anchoring exchanges, by response class.",
		}, []string{"class"}),
		verificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_verification_failures_total",
			Help:      "Backend responses whose signature did not verify.",
		}),
	}

	reg.MustRegister(m.readingsSubmitted, m.readingsDropped, m.ensureReadyFailures, m.anchors, m.verificationFailures)
	return m
}

// InitLabels creates the labelled series up front so they export as zero
// before the first event.
func (m *Metrics) InitLabels(reasons, classes []string) {
	if m == nil {
		return
	}
	for _, r := range reasons {
		m.ensureReadyFailures.WithLabelValues(r)
	}
	for _, c := range classes {
		m.anchors.WithLabelValues(c)
	}
}

func (m *Metrics) ReadingSubmitted() {
	if m != nil {
		m.readingsSubmitted.Inc()
	}
}

func (m *Metrics) ReadingDropped() {
	if m != nil {
		m.readingsDropped.Inc()
	}
}

func (m *Metrics) EnsureReadyFailed(reason string) {
	if m != nil {
		m.ensureReadyFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Anchored(class string) {
	if m != nil {
		m.anchors.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) VerificationFailed() {
	if m != nil {
		m.verificationFailures.Inc()
	}
}

// MetricsServer serves /metrics from its own registry.
type MetricsServer struct {
	Registry *prometheus.Registry
	Metrics  *Metrics
	srv      *http.Server
}

// New creates a metrics server listening on listenAddr. The registry also
// carries the Go runtime and process collectors.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		Registry: reg,
		Metrics:  NewMetrics(namespace, reg),
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
