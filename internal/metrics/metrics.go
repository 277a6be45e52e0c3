// Package metrics exposes bot activity as Prometheus metrics, fed from the
// internal event bus and the gateway observer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yogabot/internal/bus"
)

type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	DispatchErrorsTotal  *prometheus.CounterVec
	GatewayRequestSecs   *prometheus.HistogramVec
	GatewayErrorsTotal   *prometheus.CounterVec
	RecognitionMissTotal prometheus.Counter
	InflightMessages     prometheus.Gauge
	DispatchSeconds      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the bot's collectors with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yogabot_messages_total",
				Help: "Messages dispatched, by channel and intent",
			},
			[]string{"channel", "intent"},
		),
		DispatchErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yogabot_dispatch_errors_total",
				Help: "Failed dispatches, by intent and error kind",
			},
			[]string{"intent", "kind"},
		),
		GatewayRequestSecs: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yogabot_gateway_request_seconds",
				Help:    "Latency of AI service calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service"},
		),
		GatewayErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yogabot_gateway_errors_total",
				Help: "Failed AI service calls",
			},
			[]string{"service"},
		),
		RecognitionMissTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "yogabot_recognition_miss_total",
				Help: "Voice messages the speech service could not recognise",
			},
		),
		InflightMessages: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "yogabot_inflight_messages",
				Help: "Messages currently being dispatched",
			},
		),
		DispatchSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yogabot_dispatch_seconds",
				Help:    "End-to-end dispatch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGateway records one AI service call. It matches gateway.Observer.
func (m *Metrics) ObserveGateway(service string, elapsed time.Duration, err error) {
	m.GatewayRequestSecs.WithLabelValues(service).Observe(elapsed.Seconds())
	if err != nil {
		m.GatewayErrorsTotal.WithLabelValues(service).Inc()
	}
}

// Subscribe attaches the collectors to the message lifecycle events and
// returns a function that detaches them.
func (m *Metrics) Subscribe(events *bus.EventBus) func() {
	ids := map[string]string{
		bus.EventMessageReceived: events.On(bus.EventMessageReceived, func(bus.Event) {
			m.InflightMessages.Inc()
		}),
		bus.EventMessageDispatched: events.On(bus.EventMessageDispatched, func(e bus.Event) {
			m.InflightMessages.Dec()
			m.MessagesTotal.WithLabelValues(e.Channel, e.Intent).Inc()
			m.DispatchSeconds.WithLabelValues(e.Intent).Observe(e.Latency.Seconds())
			if e.Intent == "voice" && !e.Recognized {
				m.RecognitionMissTotal.Inc()
			}
		}),
		bus.EventMessageFailed: events.On(bus.EventMessageFailed, func(e bus.Event) {
			m.InflightMessages.Dec()
			m.MessagesTotal.WithLabelValues(e.Channel, e.Intent).Inc()
			m.DispatchErrorsTotal.WithLabelValues(e.Intent, e.ErrorKind).Inc()
			m.DispatchSeconds.WithLabelValues(e.Intent).Observe(e.Latency.Seconds())
		}),
	}
	return func() {
		for typ, id := range ids {
			events.Off(typ, id)
		}
	}
}
