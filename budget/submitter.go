// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SubmitFinalBudget is the masternode-only path driven by NewBlock once
// per block while the host is in ModeSuggest. It
// first gives every finalized budget covering the upcoming cycle a
// chance to match this node's own locally-preferred slate and receive
// this node's auto-vote, then, once per cycle and only inside the
// finalization window, builds and relays this node's own finalized
// budget if nothing already on the wire matches it.
//
// A plain, non-masternode manager (UseVotingKey never called) takes no
// action here: it still tallies and relays votes cast by others, it
// simply never originates one. This sidesteps the inverted-looking
// active-masternode-vin guard the original submission loop carried;
// gating on a locally-held voting key is the unambiguous form of the
// same rule.
func (m *Manager) SubmitFinalBudget(height int32) error {
	if !m.isMasternode() {
		return nil
	}

	cycle := m.params.CycleLength
	blockStart := cycleStartFor(height, cycle) + cycle

	localSlate := m.GetBudget(height)

	m.voteOnMatchingBudgets(blockStart, localSlate)

	if height >= blockStart || blockStart-height > m.params.FinalizationWindow {
		return nil
	}
	if len(localSlate) == 0 {
		return nil
	}

	m.submitMu.Lock()
	defer m.submitMu.Unlock()
	if m.lastSubmittedHeight == blockStart {
		return nil
	}

	if m.hasMatchingFinalizedBudget(blockStart, localSlate) {
		m.lastSubmittedHeight = blockStart
		return nil
	}

	b := NewFinalizedBudget(
		fmt.Sprintf("finalized-%d", blockStart),
		blockStart,
		localSlateToPayments(localSlate),
		m.now(),
	)
	tentativeHash := b.Hash()

	feeTxHash, ok := m.collateralTxids[tentativeHash]
	if !ok {
		// First tick for this slate: commit the collateral transaction
		// and wait for it to reach BudgetFeeConfirmations depth before
		// attempting to register the finalized budget itself.
		var err error
		feeTxHash, err = m.wallet.CreateFundedOpReturnTx(tentativeHash, m.params.FinalizationFee)
		if err != nil {
			return err
		}
		m.collateralTxids[tentativeHash] = feeTxHash
		return nil
	}
	b.FeeTxHash = feeTxHash

	added, err := m.AddFinalizedBudget(b, height)
	if err != nil {
		switch errorCode(err) {
		case ErrCollateralNotFound, ErrCollateralUnconfirmed, ErrCollateralInsufficientDepth:
			// The collateral exists but has not matured yet; retry on
			// a later tick without forgetting the txid already spent
			// on it.
			return nil
		}
		return err
	}
	if !added {
		delete(m.collateralTxids, tentativeHash)
		m.lastSubmittedHeight = blockStart
		return nil
	}

	delete(m.collateralTxids, tentativeHash)
	m.lastSubmittedHeight = blockStart

	m.net.RelayInv(InvVect{Type: InvFinalizedBudget, Hash: tentativeHash})
	m.castFinalizedBudgetVote(tentativeHash)
	return nil
}

// voteOnMatchingBudgets lets every finalized budget covering blockStart
// take its one-time, probabilistic CheckAndVote roll against this
// node's own preferred slate. CheckAndVote mutates AutoChecked, so the
// roll itself runs under the write lock; casting the resulting vote
// happens afterward, outside it.
func (m *Manager) voteOnMatchingBudgets(blockStart int32, localSlate []*Proposal) {
	var toVote []chainhash.Hash

	m.forEachFinalizedBudgetMut(func(hash chainhash.Hash, b *FinalizedBudget) {
		if b.BlockStart != blockStart {
			return
		}
		if b.CheckAndVote(localSlate, m.rng) {
			toVote = append(toVote, hash)
		}
	})

	for _, hash := range toVote {
		m.castFinalizedBudgetVote(hash)
	}
}

// hasMatchingFinalizedBudget reports whether a finalized budget already
// known for blockStart matches localSlate exactly, in which case this
// node should vote for it instead of submitting a competing one.
func (m *Manager) hasMatchingFinalizedBudget(blockStart int32, localSlate []*Proposal) bool {
	found := false
	m.forEachFinalizedBudget(func(_ chainhash.Hash, b *FinalizedBudget) {
		if found || b.BlockStart != blockStart {
			return
		}
		if b.matchesLocalSlate(localSlate) {
			found = true
		}
	})
	return found
}

// castFinalizedBudgetVote signs and relays this node's vote for the
// finalized budget identified by hash, using the voting key armed by
// UseVotingKey.
func (m *Manager) castFinalizedBudgetVote(hash chainhash.Hash) {
	vote := &FinalizedBudgetVote{
		Voter:      m.votingOutpoint,
		BudgetHash: hash,
		Time:       m.now(),
	}
	sig, err := m.crypto.Sign(vote.SigningMessage(), m.votingKey)
	if err != nil {
		log.Errorf("failed to sign finalized budget vote for %v: %v", hash, err)
		return
	}
	vote.Signature = sig

	var voteErr error
	found := m.withFinalizedBudget(hash, func(b *FinalizedBudget) {
		voteErr = b.AddOrUpdateVote(vote, m.now())
	})
	if !found {
		return
	}
	if voteErr != nil {
		log.Debugf("local finalized budget vote for %v rejected: %v", hash, voteErr)
		return
	}

	voteHash := vote.Hash()
	m.finalizedVotesMu.Lock()
	m.seenFinalizedVotes[voteHash] = vote
	m.finalizedVotesMu.Unlock()

	m.recordVoteProcessed("finalized-budget")
	m.net.RelayInv(InvVect{Type: InvFinalizedBudgetVote, Hash: voteHash})
}
