package server

import (
	"github.com/aeolun/tower/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dev server's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests          *prometheus.CounterVec
	messagesAppended  prometheus.Counter
	logBytes          prometheus.Gauge
	activeConnections prometheus.Gauge
}

// NewMetrics creates the server metrics on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tower_server_requests_total",
				Help: "Total RAC requests handled",
			},
			[]string{"kind"},
		),
		messagesAppended: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tower_server_messages_appended_total",
				Help: "Total messages appended to the log",
			},
		),
		logBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tower_server_log_bytes",
				Help: "Current size of the message log in bytes",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tower_server_active_connections",
				Help: "Open client connections",
			},
		),
	}
}

func (m *Metrics) RecordRequest(kind protocol.RequestKind) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(requestKindString(kind)).Inc()
}

func (m *Metrics) RecordAppend(logSize int) {
	if m == nil {
		return
	}
	m.messagesAppended.Inc()
	m.logBytes.Set(float64(logSize))
}

func (m *Metrics) RecordActiveConnections(count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func requestKindString(kind protocol.RequestKind) string {
	switch kind {
	case protocol.RequestSize:
		return "size"
	case protocol.RequestChunk:
		return "chunk"
	case protocol.RequestSend:
		return "send"
	case protocol.RequestSendAuth:
		return "send_auth"
	case protocol.RequestRegister:
		return "register"
	default:
		return "unknown"
	}
}
