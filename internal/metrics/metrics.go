// Package metrics exposes Prometheus collectors for schedule loads, refreshes
// and reminders.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"confsched/internal/apperr"
)

const namespace = "confsched"

var (
	ScheduleLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_loads_total",
			Help:      "Schedule loads by source (url, file, library) and result.",
		},
		[]string{"source", "result"},
	)

	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Schedule refresh attempts by reason (manual, auto) and result.",
		},
		[]string{"reason", "result"},
	)

	RemindersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminder notifications delivered, by path (foreground, background).",
		},
		[]string{"path"},
	)

	RemindersSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_skipped_total",
			Help:      "Favorited sessions not armed because they already started or are more than 24h away.",
		},
	)

	RemindersArmed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_armed",
			Help:      "Reminders currently armed.",
		},
	)
)

// Result labels an outcome: "ok", or the error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if k := apperr.KindOf(err); k != apperr.KindUnknown {
		return string(k)
	}
	return "error"
}
