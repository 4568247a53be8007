// Package metrics exposes simulator, broadcast and HTTP instrumentation in
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridsmart/backend/internal/domain"
)

const namespace = "gridsmart"

// Metrics implements service.Instruments and broadcast.Instruments on a
// private registry
type Metrics struct {
	registry *prometheus.Registry

	ticks           *prometheus.CounterVec
	transformerLoad prometheus.Gauge
	netUsage        prometheus.Gauge
	incentiveRate   prometheus.Gauge
	peak            prometheus.Gauge
	transitions     *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec

	broadcastPublished *prometheus.CounterVec
	broadcastFailed    *prometheus.CounterVec
	broadcastDropped   *prometheus.CounterVec

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_ticks_total",
			Help:      "Simulation steps completed, by simulator.",
		}, []string{"simulator"}),
		transformerLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transformer_load_percent",
			Help:      "Latest simulated transformer load.",
		}),
		netUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "net_usage_kwh",
			Help:      "Latest simulated household net usage.",
		}),
		incentiveRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incentive_rate",
			Help:      "Latest incentive rate per kWh.",
		}),
		peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_time",
			Help:      "1 while inside a peak window.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_transitions_total",
			Help:      "Prediction status transitions.",
		}, []string{"from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_outcomes_total",
			Help:      "Settled predictions by outcome.",
		}, []string{"outcome"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Registered listeners by topic.",
		}, []string{"topic"}),
		broadcastPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_published_total",
			Help:      "Messages delivered to a broker, by sink.",
		}, []string{"sink"}),
		broadcastFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failed_total",
			Help:      "Failed broker deliveries, by sink.",
		}, []string{"sink"}),
		broadcastDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Messages dropped on a full broadcast queue, by topic.",
		}, []string{"topic"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.transformerLoad,
		m.netUsage,
		m.incentiveRate,
		m.peak,
		m.transitions,
		m.outcomes,
		m.subscribers,
		m.broadcastPublished,
		m.broadcastFailed,
		m.broadcastDropped,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latencies by route template
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) TickCompleted(simulator string) {
	m.ticks.WithLabelValues(simulator).Inc()
}

func (m *Metrics) EnergyObserved(d domain.EnergyData) {
	m.transformerLoad.Set(d.TransformerLoad)
	m.netUsage.Set(d.NetUsage)
	m.incentiveRate.Set(d.IncentiveRate)
	if d.IsPeakTime {
		m.peak.Set(1)
	} else {
		m.peak.Set(0)
	}
}

func (m *Metrics) PredictionTransitioned(from, to domain.PredictionStatus) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) PredictionSettled(outcome domain.Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) SubscribersChanged(topic string, count int) {
	m.subscribers.WithLabelValues(topic).Set(float64(count))
}

func (m *Metrics) BroadcastPublished(sink string) {
	m.broadcastPublished.WithLabelValues(sink).Inc()
}

func (m *Metrics) BroadcastFailed(sink string) {
	m.broadcastFailed.WithLabelValues(sink).Inc()
}

func (m *Metrics) BroadcastDropped(topic string) {
	m.broadcastDropped.WithLabelValues(topic).Inc()
}
