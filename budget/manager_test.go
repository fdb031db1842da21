// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// registerCollateral builds and registers a transaction whose single
// unspendable output commits to bindingHash and pays fee, confirmed
// confirmations deep in a block at height. It returns the transaction
// hash a Proposal or FinalizedBudget's FeeTxHash should carry.
func registerCollateral(chain *fakeChainIndex, bindingHash chainhash.Hash, fee btcutil.Amount, height int32, confirmations int32) chainhash.Hash {
	tx := wire.NewMsgTx(1)
	tx.AddTxOut(bindingOutputUnchecked(bindingHash, fee))

	blockHash := chainhash.HashH([]byte{byte(height), byte(height >> 8)})
	chain.addBlock(BlockIndexEntry{Hash: blockHash, Height: height, Time: time.Unix(int64(height), 0), InActive: true})

	txHash := tx.TxHash()
	chain.addTx(txHash, tx, blockHash, confirmations)
	return txHash
}

func bindingOutputUnchecked(hash chainhash.Hash, value btcutil.Amount) *wire.TxOut {
	script := append([]byte{0x6a, byte(len(hash))}, hash[:]...)
	return wire.NewTxOut(int64(value), script)
}

func TestManagerAddProposal(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)

	p := NewProposal("p", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, m.params.CycleLength, time.Unix(0, 0))
	p.FeeTxHash = registerCollateral(chain, p.Hash(), m.params.ProposalFee, 50, m.params.BudgetFeeConfirmations)

	added, err := m.AddProposal(p, 100)
	require.NoError(t, err)
	require.True(t, added)

	got, ok := m.Proposal(p.Hash())
	require.True(t, ok)
	require.Equal(t, p.Hash(), got.Hash())

	// A second insertion of the same proposal is rejected as a
	// duplicate, without re-running collateral verification.
	added, err = m.AddProposal(p, 100)
	require.Error(t, err)
	require.False(t, added)
	require.Equal(t, ErrDuplicate, err.(Error).ErrorCode)
}

func TestManagerAddProposalRejectsBadCollateral(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)

	p := NewProposal("p", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, m.params.CycleLength, time.Unix(0, 0))
	p.FeeTxHash = chainhash.Hash{0x01}

	_, err := m.AddProposal(p, 100)
	require.Error(t, err)
	require.Equal(t, ErrCollateralNotFound, err.(Error).ErrorCode)

	_, ok := m.Proposal(p.Hash())
	require.False(t, ok)
}

func TestManagerAddFinalizedBudget(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)

	b := NewFinalizedBudget("slate", 30, samplePayments(1), time.Unix(0, 0))
	b.FeeTxHash = registerCollateral(chain, b.Hash(), m.params.FinalizationFee, 50, m.params.BudgetFeeConfirmations)

	added, err := m.AddFinalizedBudget(b, 100)
	require.NoError(t, err)
	require.True(t, added)

	got, ok := m.FinalizedBudget(b.Hash())
	require.True(t, ok)
	require.Equal(t, b.Hash(), got.Hash())
}

func TestManagerCheckAndRemoveEvictsExpired(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)

	expired := NewProposal("expired", "https://example.com", validPayee(), 10*btcutil.SatoshiPerBitcoin, 30, 1, m.params.CycleLength, time.Unix(0, 0))
	expired.FeeTxHash = registerCollateral(chain, expired.Hash(), m.params.ProposalFee, 50, m.params.BudgetFeeConfirmations)
	_, err := m.AddProposal(expired, 100)
	require.NoError(t, err)

	survivor := NewProposal("survivor", "https://example.com", validPayee(), 10*btcutil.SatoshiPerBitcoin, 300, 1, m.params.CycleLength, time.Unix(0, 0))
	survivor.FeeTxHash = registerCollateral(chain, survivor.Hash(), m.params.ProposalFee, 50, m.params.BudgetFeeConfirmations)
	_, err = m.AddProposal(survivor, 100)
	require.NoError(t, err)

	staleBudget := NewFinalizedBudget("old", 30, samplePayments(1), time.Unix(0, 0))
	staleBudget.FeeTxHash = registerCollateral(chain, staleBudget.Hash(), m.params.FinalizationFee, 50, m.params.BudgetFeeConfirmations)
	_, err = m.AddFinalizedBudget(staleBudget, 100)
	require.NoError(t, err)

	m.CheckAndRemove(expired.BlockEnd+1, 1000)

	_, ok := m.Proposal(expired.Hash())
	require.False(t, ok)
	_, ok = m.Proposal(survivor.Hash())
	require.True(t, ok)
	_, ok = m.FinalizedBudget(staleBudget.Hash())
	require.False(t, ok)
}

func TestManagerUseVotingKeyArmsIsMasternode(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	require.False(t, m.isMasternode())

	m.UseVotingKey(wire.OutPoint{Index: 1}, testPrivateKey(1))
	require.True(t, m.isMasternode())
}

func TestManagerBestHeight(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	require.Equal(t, int32(0), m.BestHeight())

	require.NoError(t, m.NewBlock(500, 490, true, false, nil))
	require.Equal(t, int32(500), m.BestHeight())
}

func TestManagerNewBlockSkipsMaintenanceBeforeBudgetStage(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	require.NoError(t, m.NewBlock(500, 490, false, true, nil))
	require.Equal(t, int32(500), m.BestHeight())
}
