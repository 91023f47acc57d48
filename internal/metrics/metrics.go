package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ConnectedSockets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_connected_sockets",
			Help: "Open sockets by kind.",
		},
		[]string{"kind"},
	)

	SocketMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_socket_messages_dropped_total",
			Help: "Outbound socket messages dropped because the send buffer was full.",
		},
		[]string{"kind"},
	)

	SessionRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_session_rotations_total",
			Help: "Refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	PairingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_pairings_total",
			Help: "Device pairings by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	PlaylistResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_playlist_resolutions_total",
			Help: "Playlist resolutions by result.",
		},
		[]string{"result"},
	)

	CollaboratorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_collaborator_failures_total",
			Help: "Best-effort upstream failures swallowed during resolution.",
		},
		[]string{"collaborator"},
	)

	ScheduledJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_scheduled_jobs",
			Help: "Pending campaign transition timers.",
		},
	)

	CampaignTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_campaign_transitions_total",
			Help: "Campaign status transitions fired by the scheduler.",
		},
		[]string{"status"},
	)

	TokensPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_tokens_purged_total",
			Help: "Stale token records deleted by maintenance.",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_events_published_total",
			Help: "Fleet events handed to the broker by outcome.",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ConnectedSockets,
			SocketMessagesDropped,
			SessionRotationsTotal,
			PairingsTotal,
			PlaylistResolutionsTotal,
			CollaboratorFailuresTotal,
			ScheduledJobs,
			CampaignTransitionsTotal,
			TokensPurgedTotal,
			EventsPublishedTotal,
		)
	})
}
