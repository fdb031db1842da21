// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// VoteDirection is a masternode's stance on a proposal. Finalized
// budgets carry no direction field: submitting a vote for one is itself
// the "yes".
type VoteDirection int32

const (
	VoteAbstain VoteDirection = iota
	VoteYes
	VoteNo
)

func (d VoteDirection) String() string {
	switch d {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	default:
		return "abstain"
	}
}

// BudgetVote is a signed, directional vote on a single proposal.
type BudgetVote struct {
	Voter        wire.OutPoint
	ProposalHash chainhash.Hash
	Direction    VoteDirection
	Time         time.Time
	Signature    []byte

	// Valid is refreshed by CleanAndRemove: it is true iff Voter is
	// currently a known masternode.
	Valid bool

	// Synced marks whether this vote has already been pushed to a
	// syncing peer in a partial Sync pass.
	Synced bool
}

// Hash is this vote's identity: voter, target, direction, and
// timestamp. Two votes from the same voter on the same target at
// different times necessarily have different hashes, which is what
// lets the manager's seen-vote cache tell a replacement vote from a
// duplicate.
func (v *BudgetVote) Hash() chainhash.Hash {
	var buf bytes.Buffer
	writeOutPoint(&buf, v.Voter)
	buf.Write(v.ProposalHash[:])
	binary.Write(&buf, binary.LittleEndian, v.Direction)
	binary.Write(&buf, binary.LittleEndian, v.Time.Unix())
	return chainhash.HashH(buf.Bytes())
}

// SigningMessage is the byte sequence signed by the voter's masternode
// key and checked by Crypto.Verify.
func (v *BudgetVote) SigningMessage() []byte {
	var buf bytes.Buffer
	writeOutPoint(&buf, v.Voter)
	buf.Write(v.ProposalHash[:])
	binary.Write(&buf, binary.LittleEndian, v.Direction)
	binary.Write(&buf, binary.LittleEndian, v.Time.Unix())
	return buf.Bytes()
}

// FinalizedBudgetVote is a signed vote in favor of a specific finalized
// budget. There is no direction: casting one is an implicit "yes".
type FinalizedBudgetVote struct {
	Voter      wire.OutPoint
	BudgetHash chainhash.Hash
	Time       time.Time
	Signature  []byte
	Valid      bool
	Synced     bool
}

// Hash is this vote's identity: voter, target, and timestamp.
func (v *FinalizedBudgetVote) Hash() chainhash.Hash {
	var buf bytes.Buffer
	writeOutPoint(&buf, v.Voter)
	buf.Write(v.BudgetHash[:])
	binary.Write(&buf, binary.LittleEndian, v.Time.Unix())
	return chainhash.HashH(buf.Bytes())
}

// SigningMessage is the byte sequence signed by the voter's masternode
// key and checked by Crypto.Verify.
func (v *FinalizedBudgetVote) SigningMessage() []byte {
	var buf bytes.Buffer
	writeOutPoint(&buf, v.Voter)
	buf.Write(v.BudgetHash[:])
	binary.Write(&buf, binary.LittleEndian, v.Time.Unix())
	return buf.Bytes()
}

func writeOutPoint(buf *bytes.Buffer, op wire.OutPoint) {
	buf.Write(op.Hash[:])
	binary.Write(buf, binary.LittleEndian, op.Index)
}

// voteTimingError validates the common timestamp-monotonicity rule
// shared by proposal and finalized-budget vote intake: the new vote
// must not be older than, nor too close in time to, the stored one for
// the same voter, and must not be implausibly far in the future.
func voteTimingError(storedTime, newTime, now time.Time) error {
	if now.Add(VoteFutureTolerance).Before(newTime) {
		return newError(ErrVoteTooFuture, "vote timestamp is too far in the future", nil)
	}
	if !storedTime.IsZero() {
		if newTime.Before(storedTime) {
			return newError(ErrVoteStale, "vote is older than the stored vote for this voter", nil)
		}
		if newTime.Sub(storedTime) < BudgetVoteUpdateMin {
			return newError(ErrVoteTooFast, "vote arrived before the minimum update interval elapsed", nil)
		}
	}
	return nil
}
