package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records API key and password authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envault_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InviteRedemptions counts invite redemption attempts and their outcome (success|invalid|error).
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envault_invite_redemptions_total",
			Help: "Total number of invite redemption attempts",
		},
		[]string{"result"},
	)

	// KeyRotations counts issued API keys.
	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "envault_key_rotations_total",
			Help: "Total number of API keys generated",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "envault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
