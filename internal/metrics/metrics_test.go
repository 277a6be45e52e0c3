package metrics

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yogabot/internal/bus"
)

func newEvents() *bus.EventBus {
	return bus.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribe_CountsLifecycle(t *testing.T) {
	m := New(nil)
	events := newEvents()
	m.Subscribe(events)

	events.Emit(bus.Event{Type: bus.EventMessageReceived})
	events.Emit(bus.Event{Type: bus.EventMessageReceived})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InflightMessages))

	events.Emit(bus.Event{Type: bus.EventMessageDispatched, Channel: "telegram", Intent: "text", Latency: time.Second})
	events.Emit(bus.Event{Type: bus.EventMessageFailed, Channel: "webhook", Intent: "image", ErrorKind: "gateway"})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InflightMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("telegram", "text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("webhook", "image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchErrorsTotal.WithLabelValues("image", "gateway")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RecognitionMissTotal))
}

func TestSubscribe_RecognitionMiss(t *testing.T) {
	m := New(nil)
	events := newEvents()
	m.Subscribe(events)

	events.Emit(bus.Event{Type: bus.EventMessageDispatched, Intent: "voice", Recognized: false})
	events.Emit(bus.Event{Type: bus.EventMessageDispatched, Intent: "voice", Recognized: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecognitionMissTotal))
}

func TestSubscribe_Detach(t *testing.T) {
	m := New(nil)
	events := newEvents()
	detach := m.Subscribe(events)
	detach()

	events.Emit(bus.Event{Type: bus.EventMessageReceived})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InflightMessages))
}

func TestObserveGateway(t *testing.T) {
	m := New(nil)
	m.ObserveGateway("vision", 200*time.Millisecond, nil)
	m.ObserveGateway("vision", time.Second, errors.New("503"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.GatewayRequestSecs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayErrorsTotal.WithLabelValues("vision")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.MessagesTotal.WithLabelValues("cli", "text").Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `yogabot_messages_total{channel="cli",intent="text"} 1`), body)
}
