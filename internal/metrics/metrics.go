package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DecisionsTotal         *prometheus.CounterVec
	AlertsDispatched       *prometheus.CounterVec
	AlertsThrottled        *prometheus.CounterVec
	CasesCreated           prometheus.Counter
	EmailsSent             prometheus.Counter
	EmailsFailed           prometheus.Counter
	SideEffectFailures     *prometheus.CounterVec
	StatePersistFailures   prometheus.Counter
	DispatchDuration       prometheus.Histogram
	SessionsEndedBySweeper prometheus.Counter
	SessionSummaries       *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg; pass prometheus.NewRegistry() in tests
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_decisions_total",
			Help: "Total number of decisions computed, by severity",
		}, []string{"severity"}),
		AlertsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_alerts_dispatched_total",
			Help: "Total number of alerts persisted and fanned out",
		}, []string{"severity"}),
		AlertsThrottled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_alerts_throttled_total",
			Help: "Total number of alerts suppressed by a cooldown",
		}, []string{"severity"}),
		CasesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "escalation_cases_created_total",
			Help: "Total number of escalated cases opened",
		}),
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "escalation_emails_sent_total",
			Help: "Total number of escalation emails delivered",
		}),
		EmailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "escalation_emails_failed_total",
			Help: "Total number of escalation emails that failed to send",
		}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_side_effect_failures_total",
			Help: "Total number of non-fatal dispatch step failures",
		}, []string{"step"}),
		StatePersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "escalation_state_persist_failures_total",
			Help: "Total number of alert state writes that failed after all retries",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "escalation_dispatch_duration_seconds",
			Help:    "Time taken to handle an inbound message end to end",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsEndedBySweeper: factory.NewCounter(prometheus.CounterOpts{
			Name: "escalation_sessions_idle_ended_total",
			Help: "Total number of sessions ended by the idle sweeper",
		}),
		SessionSummaries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_session_summaries_total",
			Help: "Total number of ended-session summaries, by result",
		}, []string{"result"}),
	}
}
