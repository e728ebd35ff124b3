// Package metrics exposes Prometheus collectors for task and
// reconciliation activity, the way fenilsonani-email-server and the
// artpromedia-email service fleet instrument their request pipelines with
// github.com/prometheus/client_golang rather than ad hoc counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector this module exposes, so callers can
// register them all in one Prometheus registry without reaching into
// package-level globals.
type Registry struct {
	TasksStarted   *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec

	CommandsIssued prometheus.Counter

	ReconcileDuration *prometheus.HistogramVec

	VanishedAbsorbedTotal prometheus.Counter
	ExpungeAbsorbedTotal  prometheus.Counter
}

// NewRegistry creates a Registry with all collectors initialized but not
// yet registered with any prometheus.Registerer.
func NewRegistry() *Registry {
	return &Registry{
		TasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "tasks_started_total",
			Help:      "Number of tasks enqueued, by task kind.",
		}, []string{"kind"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "tasks_completed_total",
			Help:      "Number of tasks that finished successfully, by task kind.",
		}, []string{"kind"}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "tasks_failed_total",
			Help:      "Number of tasks that finished with an error, by task kind.",
		}, []string{"kind"}),
		CommandsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "commands_issued_total",
			Help:      "Number of IMAP commands written to the wire.",
		}),
		ReconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imapcore",
			Name:      "reconcile_duration_seconds",
			Help:      "ObtainSynchronizedMailbox duration, by reconciliation outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		VanishedAbsorbedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "vanished_uids_absorbed_total",
			Help:      "Number of UIDs removed from the live map via QRESYNC VANISHED.",
		}),
		ExpungeAbsorbedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapcore",
			Name:      "expunge_absorbed_total",
			Help:      "Number of EXPUNGE responses absorbed during reconciliation.",
		}),
	}
}

// Collectors returns every collector in the registry, for bulk
// registration: reg.MustRegister(m.Collectors()...).
func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.TasksStarted,
		r.TasksCompleted,
		r.TasksFailed,
		r.CommandsIssued,
		r.ReconcileDuration,
		r.VanishedAbsorbedTotal,
		r.ExpungeAbsorbedTotal,
	}
}

// TaskStarted, TaskCompleted, and TaskFailed implement task.Observer, so a
// *Registry can be passed directly to task.NewSchedulerWithObserver.
func (r *Registry) TaskStarted(kind string)   { r.TasksStarted.WithLabelValues(kind).Inc() }
func (r *Registry) TaskCompleted(kind string) { r.TasksCompleted.WithLabelValues(kind).Inc() }
func (r *Registry) TaskFailed(kind string)    { r.TasksFailed.WithLabelValues(kind).Inc() }

// ReconcileFinished, VanishedAbsorbed, and ExpungeAbsorbed implement
// syncengine.Observer, so a *Registry can be passed directly to
// syncengine.NewWithObserver.
func (r *Registry) ReconcileFinished(outcome string, d time.Duration) {
	r.ReconcileDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
func (r *Registry) VanishedAbsorbed(n int) { r.VanishedAbsorbedTotal.Add(float64(n)) }
func (r *Registry) ExpungeAbsorbed(n int)  { r.ExpungeAbsorbedTotal.Add(float64(n)) }
