package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livequiz"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "connections",
		Help:      "Number of connections currently registered with the event router.",
	})

	RouterEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "events_total",
		Help:      "Inbound events handled by the event router, by kind and outcome.",
	}, []string{"event", "outcome"})

	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "dropped_sends_total",
		Help:      "Outbound messages that could not be delivered to a connection.",
	})

	CodeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "join_code_attempts",
		Help:      "Join code draws needed to create a session.",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})

	AnswersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "score",
		Name:      "answers_recorded_total",
		Help:      "Recorded answer submissions, by correctness.",
	}, []string{"correct"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "errors_total",
		Help:      "Failed Redis operations, by client and command.",
	}, []string{"client", "cmd"})
)
