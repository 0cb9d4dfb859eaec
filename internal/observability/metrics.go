package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "dispatch_relay", Name: "connections_active", Help: "Currently connected clients"})
	RoomsActive       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "dispatch_relay", Name: "rooms_active", Help: "Rooms with at least one member"})

	RoomMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "room_messages_total", Help: "Room broadcasts originated on this instance"})
	SendDroppedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "send_dropped_total", Help: "Outbound frames dropped because a client queue was full"})

	FanoutPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "fanout_published_total", Help: "Envelopes published to the fanout channel"})
	FanoutReceivedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "fanout_received_total", Help: "Envelopes received from the fanout channel, own origin excluded"})

	TripsCreatedTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "trips_created_total", Help: "Trips successfully created via the trip service"})
	TripErrorsTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "trip_errors_total", Help: "Trip creation failures surfaced to riders"})
	AssignmentMissedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "trips_assignment_missed_total", Help: "Assigned drivers that were not reachable on this instance"})
	ResponsesDroppedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "trip_responses_dropped_total", Help: "Driver responses for unknown trip ids"})
	TripRoutesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "trip_routes_expired_total", Help: "Trip routes removed by the TTL janitor"})

	DriverResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "driver_responses_total", Help: "Driver accept/reject decisions relayed"},
		[]string{"outcome"},
	)

	RecoveryResumedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "recovery_resumed_total", Help: "Connections resumed within the grace window"})
	RecoveryExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "recovery_expired_total", Help: "Recovery snapshots discarded after the grace window"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_relay", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch_relay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
