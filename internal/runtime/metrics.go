package runtime

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatchMetrics holds the Prometheus collectors fed by the metrics
// middleware and the streaming engine.
type dispatchMetrics struct {
	calls         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	activeStreams prometheus.Gauge
	broadcasts    *prometheus.CounterVec
}

func newDispatchMetrics(reg prometheus.Registerer) *dispatchMetrics {
	factory := promauto.With(reg)
	return &dispatchMetrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typedipc",
			Name:      "calls_total",
			Help:      "Dispatched calls by namespace, channel, and outcome.",
		}, []string{"namespace", "channel", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "typedipc",
			Name:      "call_duration_seconds",
			Help:      "Handler execution time by namespace and channel.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace", "channel"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "typedipc",
			Name:      "active_streams",
			Help:      "Stream sessions currently open on the main process.",
		}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typedipc",
			Name:      "broadcast_deliveries_total",
			Help:      "Per-window broadcast deliveries by channel and outcome.",
		}, []string{"channel", "status"}),
	}
}

func (m *dispatchMetrics) middleware() Middleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) ([]byte, error) {
			start := time.Now()
			resp, err := h(ctx, call)

			status := statusOK
			if err != nil {
				status = statusError
			}
			m.calls.WithLabelValues(string(call.Namespace), call.Channel, status).Inc()
			m.duration.WithLabelValues(string(call.Namespace), call.Channel).Observe(time.Since(start).Seconds())

			return resp, err
		}
	}
}

func (m *dispatchMetrics) streamOpened() {
	if m != nil {
		m.activeStreams.Inc()
	}
}

func (m *dispatchMetrics) streamClosed() {
	if m != nil {
		m.activeStreams.Dec()
	}
}

func (m *dispatchMetrics) broadcastDelivered(channel string, err error) {
	if m == nil {
		return
	}
	status := statusOK
	if err != nil {
		status = statusError
	}
	m.broadcasts.WithLabelValues(channel, status).Inc()
}
