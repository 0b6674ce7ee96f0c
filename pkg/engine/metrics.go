package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client engine's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Ticks            prometheus.Counter
	SkippedTicks     prometheus.Counter
	FetchErrors      prometheus.Counter
	FetchDuration    prometheus.Histogram
	MessagesAppended prometheus.Counter
	MalformedLines   prometheus.Counter
	Sends            prometheus.Counter
	SendErrors       prometheus.Counter
	Connects         *prometheus.CounterVec
	State            prometheus.Gauge
}

// NewMetrics creates the engine metrics on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_sync_ticks_total",
			Help: "Sync loop ticks that started a fetch",
		}),
		SkippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_sync_ticks_skipped_total",
			Help: "Sync loop ticks skipped because the previous fetch was still running",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_fetch_errors_total",
			Help: "Failed message fetches",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tower_fetch_duration_seconds",
			Help:    "Message fetch latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_messages_appended_total",
			Help: "Envelopes appended to the message store",
		}),
		MalformedLines: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_messages_malformed_total",
			Help: "Fetched lines that did not parse",
		}),
		Sends: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_sends_total",
			Help: "Messages sent",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tower_send_errors_total",
			Help: "Failed sends",
		}),
		Connects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_connects_total",
			Help: "Connect attempts by result",
		}, []string{"result"}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tower_connection_state",
			Help: "Connection state (0 disconnected, 1 connecting, 2 connected, 3 disconnecting)",
		}),
	}
}

func (m *Metrics) recordTick(skipped bool) {
	if m == nil {
		return
	}
	if skipped {
		m.SkippedTicks.Inc()
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) recordFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.Inc()
	}
}

func (m *Metrics) recordAppend(appended, malformed int) {
	if m == nil {
		return
	}
	m.MessagesAppended.Add(float64(appended))
	m.MalformedLines.Add(float64(malformed))
}

func (m *Metrics) recordSend(err error) {
	if m == nil {
		return
	}
	m.Sends.Inc()
	if err != nil {
		m.SendErrors.Inc()
	}
}

func (m *Metrics) recordConnect(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Connects.WithLabelValues("error").Inc()
		return
	}
	m.Connects.WithLabelValues("ok").Inc()
}

func (m *Metrics) recordState(s ConnState) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}
