// Package metrics exposes application-level prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's instruments. A nil *Metrics is valid and
// turns every Record call into a no-op.
type Metrics struct {
	poolsCreated       prometheus.Counter
	membersJoined      prometheus.Counter
	poolsStarted       prometheus.Counter
	contributions      *prometheus.CounterVec
	contributionVolume prometheus.Counter
	payouts            *prometheus.CounterVec
	payoutVolume       prometheus.Counter
	memberExits        *prometheus.CounterVec
	poolsCompleted     prometheus.Counter
	poolsCancelled     prometheus.Counter
	commandErrors      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
}

// New registers the engine instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_pools_created_total",
			Help: "Pools created.",
		}),
		membersJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_members_joined_total",
			Help: "Members joined across all pools.",
		}),
		poolsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_pools_started_total",
			Help: "Pools activated.",
		}),
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "susu_contributions_total",
			Help: "Contributions recorded, labelled by timeliness.",
		}, []string{"timeliness"}),
		contributionVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_contribution_volume_total",
			Help: "Total value contributed, in minor units.",
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "susu_payouts_total",
			Help: "Payouts settled, labelled by destination.",
		}, []string{"destination"}),
		payoutVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_payout_volume_total",
			Help: "Total net value paid out, in minor units.",
		}),
		memberExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "susu_member_exits_total",
			Help: "Member exits, labelled by pool phase.",
		}, []string{"phase"}),
		poolsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_pools_completed_total",
			Help: "Pools that reached completion.",
		}),
		poolsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "susu_pools_cancelled_total",
			Help: "Pools cancelled.",
		}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "susu_command_errors_total",
			Help: "Failed commands, labelled by command name.",
		}, []string{"command"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "susu_command_duration_seconds",
			Help:    "Command latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}

	reg.MustRegister(
		m.poolsCreated,
		m.membersJoined,
		m.poolsStarted,
		m.contributions,
		m.contributionVolume,
		m.payouts,
		m.payoutVolume,
		m.memberExits,
		m.poolsCompleted,
		m.poolsCancelled,
		m.commandErrors,
		m.commandDuration,
	)

	return m
}

func (m *Metrics) RecordPoolCreated() {
	if m == nil {
		return
	}
	m.poolsCreated.Inc()
}

func (m *Metrics) RecordMemberJoined() {
	if m == nil {
		return
	}
	m.membersJoined.Inc()
}

func (m *Metrics) RecordPoolStarted() {
	if m == nil {
		return
	}
	m.poolsStarted.Inc()
}

func (m *Metrics) RecordContribution(late bool, amount int64) {
	if m == nil {
		return
	}
	timeliness := "on_time"
	if late {
		timeliness = "late"
	}
	m.contributions.WithLabelValues(timeliness).Inc()
	m.contributionVolume.Add(float64(amount))
}

func (m *Metrics) RecordPayout(forfeited bool, net int64) {
	if m == nil {
		return
	}
	destination := "recipient"
	if forfeited {
		destination = "treasury"
	}
	m.payouts.WithLabelValues(destination).Inc()
	m.payoutVolume.Add(float64(net))
}

func (m *Metrics) RecordMemberExit(phase string) {
	if m == nil {
		return
	}
	m.memberExits.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordPoolCompleted() {
	if m == nil {
		return
	}
	m.poolsCompleted.Inc()
}

func (m *Metrics) RecordPoolCancelled() {
	if m == nil {
		return
	}
	m.poolsCancelled.Inc()
}

func (m *Metrics) RecordCommandError(command string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(command).Inc()
}

func (m *Metrics) ObserveCommand(command string, seconds float64) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command).Observe(seconds)
}
