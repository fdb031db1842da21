// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics groups the manager's prometheus instrumentation, modeled on
// the budgetd-adjacent peer-governor metrics of the dingo node: a
// small set of gauges for live store size and counters for processing
// throughput.
type metrics struct {
	proposals        prometheus.Gauge
	finalizedBudgets prometheus.Gauge
	orphanVotes      prometheus.Gauge

	votesProcessed      *prometheus.CounterVec
	messagesRejected    *prometheus.CounterVec
	misbehaviorAwarded  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		proposals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "budget_proposals",
			Help: "number of proposals currently held in the live store",
		}),
		finalizedBudgets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "budget_finalized_budgets",
			Help: "number of finalized budgets currently held in the live store",
		}),
		orphanVotes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "budget_orphan_votes",
			Help: "number of votes parked awaiting their target proposal or finalized budget",
		}),
		votesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_votes_processed_total",
			Help: "votes successfully applied to a proposal or finalized budget, by kind",
		}, []string{"kind"}),
		messagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_messages_rejected_total",
			Help: "inbound governance messages rejected, by error code",
		}, []string{"code"}),
		misbehaviorAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "budget_misbehavior_score_awarded_total",
			Help: "number of times a peer's misbehavior score was raised for a governance message",
		}),
	}
}

// refreshGaugeMetrics recomputes the live-size gauges. It is cheap
// enough to call after every mutation; it is a no-op if UseMetrics was
// never called.
func (m *Manager) refreshGaugeMetrics() {
	if m.metrics == nil {
		return
	}
	m.proposalsMu.RLock()
	nProposals := len(m.proposals)
	m.proposalsMu.RUnlock()

	m.budgetsMu.RLock()
	nBudgets := len(m.budgets)
	m.budgetsMu.RUnlock()

	m.votesMu.Lock()
	nOrphanProposalVotes := len(m.orphanProposalVotes)
	m.votesMu.Unlock()

	m.finalizedVotesMu.Lock()
	nOrphanFinalizedVotes := len(m.orphanFinalizedVotes)
	m.finalizedVotesMu.Unlock()

	m.metrics.proposals.Set(float64(nProposals))
	m.metrics.finalizedBudgets.Set(float64(nBudgets))
	m.metrics.orphanVotes.Set(float64(nOrphanProposalVotes + nOrphanFinalizedVotes))
}

func (m *Manager) recordVoteProcessed(kind string) {
	if m.metrics == nil {
		return
	}
	m.metrics.votesProcessed.WithLabelValues(kind).Inc()
}

func (m *Manager) recordRejected(code ErrorCode) {
	if m.metrics == nil {
		return
	}
	m.metrics.messagesRejected.WithLabelValues(code.String()).Inc()
}

func (m *Manager) recordMisbehaving(peer Peer, score int32) {
	if m.metrics != nil {
		m.metrics.misbehaviorAwarded.Inc()
	}
	m.net.Misbehaving(peer.ID(), score)
}
