// README: Prometheus collectors for ride transitions, arbitration, fan-out, and HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drivemecrazy", Name: "ride_transitions_total", Help: "Ride lifecycle transitions by action and outcome"},
		[]string{"action", "outcome"},
	)
	AcceptRaceLost = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "drivemecrazy", Name: "accept_race_lost_total", Help: "Accept attempts that lost the arbitration race"},
	)
	FanoutPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drivemecrazy", Name: "fanout_publishes_total", Help: "Fan-out publish attempts by topic kind and outcome"},
		[]string{"topic", "outcome"},
	)
	WSSessions = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "drivemecrazy", Name: "ws_sessions", Help: "Connected websocket sessions"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drivemecrazy", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drivemecrazy",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
