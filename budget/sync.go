// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Sync pushes known governance data to a single peer. With target nil
// it pushes every known proposal, finalized budget, and their votes to
// peer; with target set
// it pushes only the item with that hash and its votes. fPartial
// restricts the push to votes not yet marked Synced (one flag per vote,
// shared by all peers); NewBlock's maintenance tick runs this
// incremental pass every MaintenanceTickBlocks blocks.
func (m *Manager) Sync(peer Peer, target *chainhash.Hash, fPartial bool) error {
	if target != nil {
		return m.syncOne(peer, *target, fPartial)
	}

	var proposalCount, budgetCount int32

	// The write-locked variants are required here: pushProposal and
	// pushFinalizedBudget flip each pushed vote's Synced flag, which is
	// a mutation of the stored entity, not just a read of it.
	m.forEachProposalMut(func(hash chainhash.Hash, p *Proposal) {
		m.pushProposal(peer, hash, p, fPartial)
		proposalCount++
	})
	m.forEachFinalizedBudgetMut(func(hash chainhash.Hash, b *FinalizedBudget) {
		m.pushFinalizedBudget(peer, hash, b, fPartial)
		budgetCount++
	})

	m.net.PushMessage(peer, &SyncStatusCount{Phase: SyncPhaseBudgetProposals, Count: proposalCount})
	m.net.PushMessage(peer, &SyncStatusCount{Phase: SyncPhaseBudgetFinalizedVotes, Count: budgetCount})
	return nil
}

func (m *Manager) syncOne(peer Peer, target chainhash.Hash, fPartial bool) error {
	if found := m.withProposal(target, func(p *Proposal) {
		m.pushProposal(peer, target, p, fPartial)
	}); found {
		return nil
	}
	if found := m.withFinalizedBudget(target, func(b *FinalizedBudget) {
		m.pushFinalizedBudget(peer, target, b, fPartial)
	}); found {
		return nil
	}
	return newError(ErrVoteUnknownTarget, "sync target is not a known proposal or finalized budget", nil)
}

func (m *Manager) pushProposal(peer Peer, hash chainhash.Hash, p *Proposal, fPartial bool) {
	m.net.PushMessage(peer, &MsgBudgetProposal{
		Name:        p.Name,
		URL:         p.URL,
		CreateTime:  p.CreateTime,
		BlockStart:  p.BlockStart,
		BlockEnd:    p.BlockEnd,
		Amount:      int64(p.Amount),
		PayeeScript: p.PayeeScript,
		FeeTxHash:   p.FeeTxHash,
	})
	for _, vote := range p.Votes {
		if fPartial && vote.Synced {
			continue
		}
		m.net.PushMessage(peer, &MsgBudgetVote{
			Voter:        vote.Voter,
			ProposalHash: hash,
			Direction:    int32(vote.Direction),
			Time:         vote.Time.Unix(),
			Signature:    vote.Signature,
		})
		vote.Synced = true
	}
}

func (m *Manager) pushFinalizedBudget(peer Peer, hash chainhash.Hash, b *FinalizedBudget, fPartial bool) {
	m.net.PushMessage(peer, &MsgFinalBudget{
		Name:       b.Name,
		BlockStart: b.BlockStart,
		Payments:   b.Payments,
		FeeTxHash:  b.FeeTxHash,
	})
	for _, vote := range b.Votes {
		if fPartial && vote.Synced {
			continue
		}
		m.net.PushMessage(peer, &MsgFinalBudgetVote{
			Voter:      vote.Voter,
			BudgetHash: hash,
			Time:       vote.Time.Unix(),
			Signature:  vote.Signature,
		})
		vote.Synced = true
	}
}
