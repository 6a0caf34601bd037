package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgesTotal counts bridge transfers by destination and final status
	BridgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_bridges_total",
			Help: "Total number of bridge transfers",
		},
		[]string{"destination", "status"},
	)

	// PhaseTransitions counts status phase transitions
	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_phase_transitions_total",
			Help: "Total number of bridge phase transitions",
		},
		[]string{"phase"},
	)

	// BridgeDuration tracks end-to-end bridge processing time
	BridgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cctp_bridge_duration_seconds",
			Help:    "End-to-end bridge duration in seconds",
			Buckets: []float64{60, 120, 300, 600, 900, 1200, 1800, 3600},
		},
		[]string{"destination"},
	)

	// AttestationPollsTotal counts attestation service lookups
	AttestationPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_attestation_polls_total",
			Help: "Total number of attestation service lookups",
		},
		[]string{"result"},
	)

	// AttestationWaitDuration tracks time spent waiting for attestations
	AttestationWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cctp_attestation_wait_seconds",
			Help:    "Time spent waiting for an attestation in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200},
		},
	)

	// TransactionsSent counts transactions submitted to each chain
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"chain", "operation", "status"},
	)

	// ActiveBridges tracks the number of non-terminal bridge transfers
	ActiveBridges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cctp_active_bridges",
			Help: "Number of bridge transfers in a non-terminal phase",
		},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
