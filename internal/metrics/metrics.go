package metrics

import (
	"context"
	"net/http"
	"time"

	awsmw "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithymw "github.com/aws/smithy-go/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eniz1806/VaultOSS/internal/osserr"
)

const middlewareID = "VaultOSSMetrics"

// Collector counts backend calls made through an instrumented S3 client and
// exposes them on its own Prometheus registry.
type Collector struct {
	reg       *prometheus.Registry
	inflight  prometheus.Gauge
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	published *prometheus.CounterVec
	startTime time.Time
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultoss",
			Subsystem: "s3",
			Name:      "inflight_requests",
			Help:      "Backend requests currently in flight.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultoss",
			Subsystem: "s3",
			Name:      "requests_total",
			Help:      "Backend requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vaultoss",
			Subsystem: "s3",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultoss",
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Notification publishes by backend and result.",
		}, []string{"backend", "result"}),
		startTime: time.Now(),
	}
	c.reg.MustRegister(c.inflight, c.requests, c.latency, c.published)
	return c
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Instrument is an s3.Options function that records every call made by the client.
func (c *Collector) Instrument(o *s3.Options) {
	o.APIOptions = append(o.APIOptions, func(stack *smithymw.Stack) error {
		return stack.Initialize.Add(smithymw.InitializeMiddlewareFunc(middlewareID, c.handleInitialize), smithymw.After)
	})
}

func (c *Collector) handleInitialize(ctx context.Context, in smithymw.InitializeInput, next smithymw.InitializeHandler) (smithymw.InitializeOutput, smithymw.Metadata, error) {
	op := awsmw.GetOperationName(ctx)
	if op == "" {
		op = "unknown"
	}

	c.inflight.Inc()
	start := time.Now()
	out, md, err := next.HandleInitialize(ctx, in)
	c.inflight.Dec()

	c.Observe(op, time.Since(start), err)
	return out, md, err
}

// Observe records one finished backend call.
func (c *Collector) Observe(op string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = osserr.Classify(err).String()
	}
	c.requests.WithLabelValues(op, outcome).Inc()
	c.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObservePublish records one notification delivery attempt.
func (c *Collector) ObservePublish(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.published.WithLabelValues(backend, result).Inc()
}
