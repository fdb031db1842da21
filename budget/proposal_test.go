// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func validPayee() []byte {
	return []byte{0x76, 0xa9, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 0x88, 0xac}
}

func TestNewProposalSnapsToCycle(t *testing.T) {
	const cycle = int32(30)
	p := NewProposal("name", "https://example.com", validPayee(), 100*btcutil.SatoshiPerBitcoin, 100, 3, cycle, time.Unix(1000, 0))

	require.Equal(t, int32(90), p.BlockStart)
	require.Equal(t, int32(90+(cycle+1)*3), p.BlockEnd)
}

func TestProposalHashIsDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p1 := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, 30, now)
	p2 := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, 30, now)

	require.Equal(t, p1.Hash(), p2.Hash())

	p2.Name = "different"
	require.NotEqual(t, p1.Hash(), p2.Hash())
}

func TestProposalIsWellFormed(t *testing.T) {
	const totalBudget = 1000 * btcutil.SatoshiPerBitcoin

	base := func() *Proposal {
		return NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 30, 1, 30, time.Unix(0, 0))
	}

	require.NoError(t, base().IsWellFormed(totalBudget))

	empty := base()
	empty.Name = ""
	require.ErrorContains(t, empty.IsWellFormed(totalBudget), "name")

	tooLong := base()
	var sb []rune
	for i := 0; i < MaxProposalNameLen+1; i++ {
		sb = append(sb, 'a')
	}
	tooLong.Name = string(sb)
	require.Error(t, tooLong.IsWellFormed(totalBudget))

	noURL := base()
	noURL.URL = ""
	require.Error(t, noURL.IsWellFormed(totalBudget))

	tooSmall := base()
	tooSmall.Amount = MinProposalAmount - 1
	require.Error(t, tooSmall.IsWellFormed(totalBudget))

	tooBig := base()
	tooBig.Amount = totalBudget + 1
	require.Error(t, tooBig.IsWellFormed(totalBudget))

	badRange := base()
	badRange.BlockEnd = badRange.BlockStart - 1
	require.Error(t, badRange.IsWellFormed(totalBudget))

	multisig := base()
	multisig.PayeeScript = []byte{0x51, 0x52, 0xae}
	require.Error(t, multisig.IsWellFormed(totalBudget))

	noPayee := base()
	noPayee.PayeeScript = nil
	require.Error(t, noPayee.IsWellFormed(totalBudget))
}

func TestProposalUpdateValid(t *testing.T) {
	p := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 0, 1, 30, time.Unix(0, 0))
	require.True(t, p.Valid())

	p.UpdateValid(p.BlockEnd+1, 100)
	require.False(t, p.Valid())
	require.Equal(t, "expired", p.InvalidReason())

	p.valid = true
	for i := 0; i < 25; i++ {
		outpoint := wire.OutPoint{Index: uint32(i)}
		p.Votes[outpoint] = &BudgetVote{Voter: outpoint, Direction: VoteNo, Valid: true}
	}
	p.UpdateValid(0, 100)
	require.False(t, p.Valid())
	require.Equal(t, "heavily downvoted", p.InvalidReason())
}

func TestProposalIsPassing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	establishment := 48 * time.Hour

	p := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 0, 2, 30, now.Add(-72*time.Hour))
	for i := 0; i < 15; i++ {
		outpoint := wire.OutPoint{Index: uint32(i)}
		p.Votes[outpoint] = &BudgetVote{Voter: outpoint, Direction: VoteYes, Valid: true}
	}

	require.True(t, p.IsPassing(p.BlockStart, p.BlockEnd, 100, now, establishment))

	// Too young: established window has not elapsed.
	young := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 0, 2, 30, now.Add(-time.Hour))
	young.Votes = p.Votes
	require.False(t, young.IsPassing(young.BlockStart, young.BlockEnd, 100, now, establishment))

	// Not enough net-yes votes.
	thin := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 0, 2, 30, now.Add(-72*time.Hour))
	require.False(t, thin.IsPassing(thin.BlockStart, thin.BlockEnd, 100, now, establishment))

	// Candidate cycle not fully covered by the proposal's own range.
	require.False(t, p.IsPassing(p.BlockStart-1, p.BlockEnd, 100, now, establishment))
}

func TestProposalAddOrUpdateVoteTiming(t *testing.T) {
	p := NewProposal("name", "https://example.com", validPayee(), 50*btcutil.SatoshiPerBitcoin, 0, 1, 30, time.Unix(0, 0))
	voter := wire.OutPoint{Index: 1}
	now := time.Unix(2_000_000, 0)

	v1 := &BudgetVote{Voter: voter, Direction: VoteYes, Time: now}
	require.NoError(t, p.AddOrUpdateVote(v1, now))

	// Too soon: within BudgetVoteUpdateMin of the stored vote.
	v2 := &BudgetVote{Voter: voter, Direction: VoteNo, Time: now.Add(time.Minute)}
	err := p.AddOrUpdateVote(v2, now.Add(time.Minute))
	require.Error(t, err)
	require.Equal(t, ErrVoteTooFast, err.(Error).ErrorCode)

	// Stale: older than the stored vote.
	v3 := &BudgetVote{Voter: voter, Direction: VoteNo, Time: now.Add(-time.Minute)}
	err = p.AddOrUpdateVote(v3, now)
	require.Error(t, err)
	require.Equal(t, ErrVoteStale, err.(Error).ErrorCode)

	// Too far in the future.
	v4 := &BudgetVote{Voter: wire.OutPoint{Index: 2}, Direction: VoteYes, Time: now.Add(2 * time.Hour)}
	err = p.AddOrUpdateVote(v4, now)
	require.Error(t, err)
	require.Equal(t, ErrVoteTooFuture, err.(Error).ErrorCode)

	// Valid replacement after the minimum interval elapses.
	v5 := &BudgetVote{Voter: voter, Direction: VoteNo, Time: now.Add(BudgetVoteUpdateMin + time.Minute)}
	require.NoError(t, p.AddOrUpdateVote(v5, now.Add(BudgetVoteUpdateMin+time.Minute)))
	require.Equal(t, VoteNo, p.Votes[voter].Direction)
}

func TestPtrHigherYesTieBreak(t *testing.T) {
	a := &Proposal{Votes: map[wire.OutPoint]*BudgetVote{}, FeeTxHash: [32]byte{0x02}}
	b := &Proposal{Votes: map[wire.OutPoint]*BudgetVote{}, FeeTxHash: [32]byte{0x01}}

	// Equal net-yes: higher collateral hash wins.
	require.True(t, PtrHigherYes(a, b))
	require.False(t, PtrHigherYes(b, a))

	voter := wire.OutPoint{Index: 1}
	b.Votes[voter] = &BudgetVote{Voter: voter, Direction: VoteYes, Valid: true}
	require.True(t, PtrHigherYes(b, a))
}
