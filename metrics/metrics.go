// Package metrics holds the agent's process-wide Prometheus counters. They
// are ambient bookkeeping: registered against a Registry so a caller can
// expose them however it likes (or not at all), never consulted by
// dispatch logic itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of counters the agent updates as it runs.
type Metrics struct {
	SessionsCreated       prometheus.Counter
	SessionsClosed        prometheus.Counter
	MessagesProcessed     prometheus.Counter
	SubmessagesDispatched *prometheus.CounterVec
	Retransmissions       prometheus.Counter
	FramesDroppedCRC      prometheus.Counter
	FragmentsReassembled  prometheus.Counter
}

// New constructs a fresh set of counters, all at zero.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "sessions_created_total",
			Help:      "Number of client sessions created.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "sessions_closed_total",
			Help:      "Number of client sessions closed, by timeout or explicit delete.",
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "messages_processed_total",
			Help:      "Number of transport-level messages decoded and processed.",
		}),
		SubmessagesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "submessages_dispatched_total",
			Help:      "Number of submessages dispatched, by kind.",
		}, []string{"kind"}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "retransmissions_total",
			Help:      "Number of reliable-stream messages resent in response to an ACKNACK.",
		}),
		FramesDroppedCRC: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "frames_dropped_crc_total",
			Help:      "Number of serial frames dropped for failing their CRC check.",
		}),
		FragmentsReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrce_agent",
			Name:      "fragments_reassembled_total",
			Help:      "Number of fragment runs successfully reassembled into one submessage.",
		}),
	}
}

// MustRegister adds every counter to reg, panicking on a duplicate
// registration the same way prometheus.MustRegister itself would.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.SessionsCreated,
		m.SessionsClosed,
		m.MessagesProcessed,
		m.SubmessagesDispatched,
		m.Retransmissions,
		m.FramesDroppedCRC,
		m.FragmentsReassembled,
	)
}
