// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// GetHighestVoteCount returns the largest vote count among finalized
// budgets whose range covers height.
func (m *Manager) GetHighestVoteCount(height int32) int {
	best := 0
	m.forEachFinalizedBudget(func(_ chainhash.Hash, b *FinalizedBudget) {
		if height < b.BlockStart || height > b.BlockEnd() {
			return
		}
		if n := b.VoteCount(); n > best {
			best = n
		}
	})
	return best
}

// IsBudgetPaymentBlock reports whether height is a payment block:
// that is, whether the best vote count for it clears 5% of the enabled
// masternode set. It also returns the threshold a finalized budget's
// vote count must clear to be considered for IsTransactionValid.
func (m *Manager) IsBudgetPaymentBlock(height int32) (bool, int) {
	highest := m.GetHighestVoteCount(height)
	enabled := m.mnDir.CountEnabled(m.params.ActiveProtocol())
	fivePercent := enabled / 20
	threshold := highest - enabled/10
	if threshold == highest {
		threshold--
	}
	return highest > fivePercent, threshold
}

// IsTransactionValid is the consensus-facing predicate block validation
// calls: it answers whether tx, mined at height in blockHash, contains
// the payments the budget subsystem expects there.
func (m *Manager) IsTransactionValid(tx *wire.MsgTx, blockHash chainhash.Hash, height int32) TxValidationResult {
	isPaymentBlock, threshold := m.IsBudgetPaymentBlock(height)
	if !isPaymentBlock {
		return TxInvalid
	}

	anyCrossedThreshold := false
	result := TxVoteThreshold

	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	for _, b := range m.budgets {
		if b.VoteCount() <= threshold {
			continue
		}
		anyCrossedThreshold = true
		r := b.IsTransactionValid(m.chain, tx, blockHash, height)
		if r == TxValid || r == TxDoublePayment {
			return r
		}
	}
	if anyCrossedThreshold {
		return TxInvalid
	}
	return result
}

// GetPayeeAndAmount resolves the single payment expected at height,
// drawn from the highest-vote finalized budget that covers it and
// clears the 5%-of-enabled-masternodes bar.
func (m *Manager) GetPayeeAndAmount(height int32) (payee []byte, amount btcutil.Amount, ok bool) {
	enabled := m.mnDir.CountEnabled(m.params.ActiveProtocol())
	fivePercent := enabled / 20

	bestVotes := -1
	m.forEachFinalizedBudget(func(_ chainhash.Hash, b *FinalizedBudget) {
		if height < b.BlockStart || height > b.BlockEnd() {
			return
		}
		if n := b.VoteCount(); n > bestVotes {
			bestVotes = n
			p := b.Payments[height-b.BlockStart]
			payee, amount, ok = p.PayeeScript, p.Amount, true
		}
	})
	if bestVotes <= fivePercent {
		return nil, 0, false
	}
	return payee, amount, ok
}

// FillBlockPayee appends or rewrites tx's outputs to carry the winning
// budget payment for the block at height h+1: proof-of-stake blocks
// get one appended output, proof-of-work blocks are rearranged into
// subsidy-then-payment.
func (m *Manager) FillBlockPayee(tx *wire.MsgTx, h int32, isProofOfStake bool) {
	payee, amount, ok := m.GetPayeeAndAmount(h + 1)
	if !ok {
		return
	}

	if isProofOfStake {
		tx.AddTxOut(wire.NewTxOut(int64(amount), payee))
		return
	}

	subsidy := m.chain.BlockValue(h+1) - amount
	outs := []*wire.TxOut{
		wire.NewTxOut(int64(subsidy), tx.TxOut[0].PkScript),
		wire.NewTxOut(int64(amount), payee),
	}
	tx.TxOut = outs
}
