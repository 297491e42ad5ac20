// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "regflow"

// Job run outcomes. A failed scan is recorded as "scan_failed" and leaves no
// daily job log, which is what separates it from an empty "ok" run.
const (
	OutcomeOK         = "ok"
	OutcomePartial    = "partial"
	OutcomeScanFailed = "scan_failed"
	OutcomeLogFailed  = "log_failed"
)

// Metrics groups every collector the service updates.
type Metrics struct {
	Allocations    prometheus.Counter
	Registrations  *prometheus.CounterVec
	JobRuns        *prometheus.CounterVec
	JobMatches     *prometheus.CounterVec
	RequestsRaised *prometheus.CounterVec
	Approvals      *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Registration numbers allocated.",
		}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_created_total",
			Help:      "Registrations created, by waiting-list placement.",
		}, []string{"waitinglist"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Escalation job runs by outcome.",
		}, []string{"job", "outcome"}),
		JobMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_matches_total",
			Help:      "Registrations matched by escalation jobs.",
		}, []string{"job"}),
		RequestsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_requests_raised_total",
			Help:      "Action requests created by the escalation pipeline.",
		}, []string{"type"}),
		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_requests_processed_total",
			Help:      "Action requests approved or rejected, by result.",
		}, []string{"type", "result"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifier calls by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// NewNop returns collectors registered on a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
