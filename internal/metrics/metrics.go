// Package metrics records broker activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives broker events worth counting
type Recorder interface {
	// RequestHandled counts a dispatched page request by kind and outcome
	RequestHandled(kind, outcome string)
	// ApprovalClosed counts a closed approval by kind and outcome
	ApprovalClosed(kind, outcome string)
	// SigningFinished counts a signing attempt by path (auto or approved) and outcome
	SigningFinished(path, outcome string)
	// FeeQuoted observes a fee lookup
	FeeQuoted(d time.Duration, err error)
}

// Prometheus implements Recorder with its own registry
type Prometheus struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	approvals *prometheus.CounterVec
	signing   *prometheus.CounterVec
	feeLookup *prometheus.HistogramVec
}

// NewPrometheus creates and registers every collector under namespace
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Page requests handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval requests closed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		signing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_total",
			Help:      "Signing attempts, by path and outcome.",
		}, []string{"path", "outcome"}),
		feeLookup: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fee_lookup_duration_seconds",
			Help:      "Fee quote latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}

	p.registry.MustRegister(
		p.requests,
		p.approvals,
		p.signing,
		p.feeLookup,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) RequestHandled(kind, outcome string) {
	p.requests.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) ApprovalClosed(kind, outcome string) {
	p.approvals.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) SigningFinished(path, outcome string) {
	p.signing.WithLabelValues(path, outcome).Inc()
}

func (p *Prometheus) FeeQuoted(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.feeLookup.WithLabelValues(status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Noop discards everything
type Noop struct{}

func (Noop) RequestHandled(string, string)  {}
func (Noop) ApprovalClosed(string, string)  {}
func (Noop) SigningFinished(string, string) {}
func (Noop) FeeQuoted(time.Duration, error) {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
