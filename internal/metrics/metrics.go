// Package metrics exposes the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "room_transitions_total",
		Help:      "Room status transitions by target status.",
	}, []string{"status"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "submissions_total",
		Help:      "Finalized submissions by resulting status.",
	}, []string{"status"})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "violations_total",
		Help:      "Reported proctoring signals by type.",
	}, []string{"type"})

	WatchdogFires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "watchdog_fires_total",
		Help:      "Deadlines that fired an automatic end.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "exam_rooms",
		Name:      "active_room_actors",
		Help:      "Room actors currently running in this process.",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "exam_rooms",
		Name:      "websocket_connections",
		Help:      "Open WebSocket connections.",
	})

	MailboxRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "mailbox_rejections_total",
		Help:      "Requests that could not reach a room actor in time.",
	})

	StatsCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam_rooms",
		Name:      "stats_cache_requests_total",
		Help:      "Statistics cache lookups by result.",
	}, []string{"result"})
)
