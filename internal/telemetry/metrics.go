package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsForwarded counts frames the hub routed successfully.
	PacketsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netsim",
			Name:      "packets_forwarded_total",
			Help:      "Total number of packets routed between sessions and facades",
		},
		[]string{"kind", "direction"},
	)

	// PacketsDropped counts frames discarded by the hub or a session.
	PacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netsim",
			Name:      "packets_dropped_total",
			Help:      "Total number of packets dropped",
		},
		[]string{"kind", "reason"},
	)

	// SessionsActive tracks the number of streaming peers.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "netsim",
			Name:      "sessions_active",
			Help:      "Number of currently streaming peer sessions",
		},
	)

	// CaptureBytes counts bytes written to pcap sinks.
	CaptureBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netsim",
			Name:      "capture_bytes_total",
			Help:      "Total number of payload bytes written to capture files",
		},
		[]string{"kind"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; registration errors for duplicates are ignored.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(PacketsForwarded)
		prometheus.DefaultRegisterer.Register(PacketsDropped)
		prometheus.DefaultRegisterer.Register(SessionsActive)
		prometheus.DefaultRegisterer.Register(CaptureBytes)
	})
}
