// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestDumpAndLoadBudgetsRoundTrips(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)

	p := NewProposal("p", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, m.params.CycleLength, time.Unix(0, 0))
	p.FeeTxHash = registerCollateral(chain, p.Hash(), m.params.ProposalFee, 50, m.params.BudgetFeeConfirmations)
	_, err := m.AddProposal(p, 100)
	require.NoError(t, err)

	b := NewFinalizedBudget("slate", 30, samplePayments(1), time.Unix(0, 0))
	b.FeeTxHash = registerCollateral(chain, b.Hash(), m.params.FinalizationFee, 50, m.params.BudgetFeeConfirmations)
	_, err = m.AddFinalizedBudget(b, 100)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.DumpBudgets(&buf))

	m2, chain2, _, _, _ := newTestManager(t)
	// The loaded snapshot's collateral is re-verified against whatever
	// chain state the second manager sees, so it needs the same
	// transactions registered.
	chain2.txs = chain.txs
	chain2.blocks = chain.blocks

	require.NoError(t, m2.LoadBudgets(&buf, 100))

	got, ok := m2.Proposal(p.Hash())
	require.True(t, ok)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.Amount, got.Amount)

	gotBudget, ok := m2.FinalizedBudget(b.Hash())
	require.True(t, ok)
	require.Equal(t, b.Name, gotBudget.Name)
	require.Len(t, gotBudget.Payments, 1)
}

func TestLoadBudgetsRejectsWrongMagic(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	var buf bytes.Buffer
	require.NoError(t, m.DumpBudgets(&buf))

	raw := buf.Bytes()
	raw[0] ^= 0xff

	err := m.LoadBudgets(bytes.NewReader(raw), 100)
	require.Error(t, err)
	require.Equal(t, ErrParse, err.(Error).ErrorCode)
}

func TestLoadBudgetsRejectsWrongNetworkMagic(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	var buf bytes.Buffer
	require.NoError(t, m.DumpBudgets(&buf))

	raw := buf.Bytes()
	raw[len(snapshotMagic)] ^= 0xff

	err := m.LoadBudgets(bytes.NewReader(raw), 100)
	require.Error(t, err)
	require.Equal(t, ErrParse, err.(Error).ErrorCode)
}

func TestLoadBudgetsRejectsChecksumMismatch(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	var buf bytes.Buffer
	require.NoError(t, m.DumpBudgets(&buf))

	raw := buf.Bytes()
	// Flip the last byte, part of the stored checksum, so it no longer
	// matches the body.
	raw[len(raw)-1] ^= 0xff

	err := m.LoadBudgets(bytes.NewReader(raw), 100)
	require.Error(t, err)
	require.Equal(t, ErrParse, err.(Error).ErrorCode)
}

func TestLoadBudgetsRejectsTruncatedSnapshot(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	err := m.LoadBudgets(bytes.NewReader([]byte("too short")), 100)
	require.Error(t, err)
	require.Equal(t, ErrParse, err.(Error).ErrorCode)
}

func TestLoadBudgetsDropsEntriesThatNoLongerValidate(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)

	p := NewProposal("p", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, m.params.CycleLength, time.Unix(0, 0))
	p.FeeTxHash = registerCollateral(chain, p.Hash(), m.params.ProposalFee, 50, m.params.BudgetFeeConfirmations)
	_, err := m.AddProposal(p, 100)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.DumpBudgets(&buf))

	// A fresh manager whose chain knows nothing about the collateral
	// transaction: LoadBudgets re-verifies and silently drops it.
	m2, _, _, _, _ := newTestManager(t)
	require.NoError(t, m2.LoadBudgets(&buf, 100))

	_, ok := m2.Proposal(p.Hash())
	require.False(t, ok)
}
