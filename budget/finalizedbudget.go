// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxFinalizedBudgetNameLen is the maximum length of a finalized
	// budget's name.
	MaxFinalizedBudgetNameLen = 20

	// MaxFinalizedBudgetSpan is the largest allowed blockEnd-blockStart
	// for a finalized budget.
	MaxFinalizedBudgetSpan = 100

	// autoVoteProbability is the chance, per maintenance tick, that
	// CheckAndVote evaluates a not-yet-autochecked finalized budget.
	// With the 14-block maintenance cadence this yields roughly one
	// check every 56 blocks per budget.
	autoVoteProbability = 4
)

// Payment is one line item of a finalized budget's payout slate.
type Payment struct {
	ProposalHash chainhash.Hash
	PayeeScript  []byte
	Amount       btcutil.Amount
}

// paidRecord remembers the block at which a proposal was last observed
// paid, so IsPaidAlready can tell an idempotent re-check of the same
// block apart from an actual double payment.
type paidRecord struct {
	blockHash   chainhash.Hash
	blockHeight int32
}

// FinalizedBudget is a specific slate of proposal payments pinned to a
// starting superblock. Like Proposal, it is created once and mutated
// only by vote intake and validity toggling.
type FinalizedBudget struct {
	Name        string
	BlockStart  int32
	Payments    []Payment
	FeeTxHash   chainhash.Hash
	CreateTime  time.Time
	AutoChecked bool

	Votes map[wire.OutPoint]*FinalizedBudgetVote

	valid bool

	paymentHistory map[chainhash.Hash]paidRecord
}

// NewFinalizedBudget constructs a finalized budget from a name,
// starting height, and ordered payment slate.
func NewFinalizedBudget(name string, blockStart int32, payments []Payment, createTime time.Time) *FinalizedBudget {
	return &FinalizedBudget{
		Name:           name,
		BlockStart:     blockStart,
		Payments:       payments,
		CreateTime:     createTime,
		Votes:          make(map[wire.OutPoint]*FinalizedBudgetVote),
		paymentHistory: make(map[chainhash.Hash]paidRecord),
		valid:          true,
	}
}

// copyFinalizedBudget is copyProposal's counterpart for finalized
// budgets.
func copyFinalizedBudget(b *FinalizedBudget) *FinalizedBudget {
	cp := *b
	cp.Votes = make(map[wire.OutPoint]*FinalizedBudgetVote, len(b.Votes))
	for outpoint, vote := range b.Votes {
		voteCopy := *vote
		cp.Votes[outpoint] = &voteCopy
	}
	cp.paymentHistory = make(map[chainhash.Hash]paidRecord, len(b.paymentHistory))
	for hash, rec := range b.paymentHistory {
		cp.paymentHistory[hash] = rec
	}
	return &cp
}

// BlockEnd is the last superblock-cycle-relative height this budget's
// payment list covers.
func (b *FinalizedBudget) BlockEnd() int32 {
	return b.BlockStart + int32(len(b.Payments)) - 1
}

// Hash is the finalized budget's identity: name, starting height, and
// the exact ordered payment list.
func (b *FinalizedBudget) Hash() chainhash.Hash {
	var buf bytes.Buffer
	wire.WriteVarString(&buf, 0, b.Name)
	binary.Write(&buf, binary.LittleEndian, b.BlockStart)
	wire.WriteVarInt(&buf, 0, uint64(len(b.Payments)))
	for _, p := range b.Payments {
		buf.Write(p.ProposalHash[:])
		wire.WriteVarBytes(&buf, 0, p.PayeeScript)
		binary.Write(&buf, binary.LittleEndian, int64(p.Amount))
	}
	return chainhash.HashH(buf.Bytes())
}

// IsWellFormed checks the static shape of a finalized budget.
func (b *FinalizedBudget) IsWellFormed(cycleLength int32, totalBudget btcutil.Amount) error {
	if len(b.Name) == 0 || len(b.Name) > MaxFinalizedBudgetNameLen {
		return newError(ErrWellFormedName, "finalized budget name must be 1-20 bytes", nil)
	}
	if b.BlockStart <= 0 || mod(b.BlockStart, cycleLength) != 0 {
		return newError(ErrWellFormedRange, "blockStart must be a positive multiple of the cycle length", nil)
	}
	if len(b.Payments) == 0 || len(b.Payments) > MaxPayments {
		return newError(ErrWellFormedPayments, "payment list must have 1-100 entries", nil)
	}
	if b.BlockEnd()-b.BlockStart > MaxFinalizedBudgetSpan {
		return newError(ErrWellFormedRange, "blockEnd-blockStart exceeds the maximum span", nil)
	}
	var total btcutil.Amount
	for _, p := range b.Payments {
		total += p.Amount
	}
	if total > totalBudget {
		return newError(ErrWellFormedAmount, "total payout exceeds the per-cycle budget cap", nil)
	}
	return nil
}

// AddOrUpdateVote applies the same per-voter timestamp-monotonicity
// rule as Proposal.AddOrUpdateVote.
func (b *FinalizedBudget) AddOrUpdateVote(vote *FinalizedBudgetVote, now time.Time) error {
	existing, ok := b.Votes[vote.Voter]
	var storedTime time.Time
	if ok {
		storedTime = existing.Time
	}
	if err := voteTimingError(storedTime, vote.Time, now); err != nil {
		return err
	}
	b.Votes[vote.Voter] = vote
	return nil
}

// CleanAndRemove refreshes each stored vote's validity flag against the
// current masternode directory.
func (b *FinalizedBudget) CleanAndRemove(dir MasternodeDirectory) {
	for outpoint, vote := range b.Votes {
		_, ok := dir.Find(outpoint)
		vote.Valid = ok
	}
}

// VoteCount returns the number of currently-valid votes.
func (b *FinalizedBudget) VoteCount() int {
	n := 0
	for _, v := range b.Votes {
		if v.Valid {
			n++
		}
	}
	return n
}

// PtrHigherVoteCount orders finalized budgets by descending vote count,
// breaking ties by descending collateral-tx hash.
func PtrHigherVoteCount(a, b *FinalizedBudget) bool {
	av, bv := a.VoteCount(), b.VoteCount()
	if av != bv {
		return av > bv
	}
	return bytes.Compare(a.FeeTxHash[:], b.FeeTxHash[:]) > 0
}

// sortedPaymentsByProposalHashDesc returns a copy of payments sorted by
// descending proposal hash, the canonical order CheckAndVote compares
// against so every node's auto-vote agrees.
func sortedPaymentsByProposalHashDesc(payments []Payment) []Payment {
	out := make([]Payment, len(payments))
	copy(out, payments)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProposalHash[:], out[j].ProposalHash[:]) > 0
	})
	return out
}

// localSlateToPayments converts the locally-preferred allocation
// (admitted proposals, each carrying its allotted amount) into the
// Payment shape a finalized budget compares against.
func localSlateToPayments(admitted []*Proposal) []Payment {
	out := make([]Payment, len(admitted))
	for i, p := range admitted {
		out[i] = Payment{
			ProposalHash: p.Hash(),
			PayeeScript:  p.PayeeScript,
			Amount:       p.Allotted,
		}
	}
	return out
}

// matchesLocalSlate reports whether this budget's payments, sorted by
// descending proposal hash, are pairwise identical to the node's own
// locally-preferred slate sorted the same way. Exact ordering here is
// the source of cross-node agreement on which finalized budget is
// "the" correct one for a cycle; it must never be relaxed.
func (b *FinalizedBudget) matchesLocalSlate(localSlate []*Proposal) bool {
	want := sortedPaymentsByProposalHashDesc(localSlateToPayments(localSlate))
	got := sortedPaymentsByProposalHashDesc(b.Payments)
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i].ProposalHash != got[i].ProposalHash {
			return false
		}
		if !bytes.Equal(want[i].PayeeScript, got[i].PayeeScript) {
			return false
		}
		if want[i].Amount != got[i].Amount {
			return false
		}
	}
	return true
}

// CheckAndVote is the masternode-only, once-per-lifetime, probabilistic
// auto-vote: on a match against the node's own locally-preferred slate,
// it reports true and leaves signing/submission to the caller (the
// Submitter owns the signing key and the relay path).
func (b *FinalizedBudget) CheckAndVote(localSlate []*Proposal, rng *rand.Rand) (shouldVote bool) {
	if b.AutoChecked {
		return false
	}
	if rng.Intn(autoVoteProbability) != 0 {
		return false
	}
	b.AutoChecked = true
	return b.matchesLocalSlate(localSlate)
}

// IsPaidAlready is the double-payment cache: before each check it
// evicts entries whose height falls outside this budget's own range,
// then records or compares the (proposal, block) pair for the height
// being checked. A payment previously recorded under a different block
// only counts as a double payment if that earlier block is still on
// the active chain; one that has since been reorged out is superseded
// by the current check rather than blocking it.
func (b *FinalizedBudget) IsPaidAlready(chain ChainIndex, proposalHash chainhash.Hash, blockHash chainhash.Hash, height int32) bool {
	b.evictOutOfRangePayments()

	rec, ok := b.paymentHistory[proposalHash]
	if !ok {
		b.paymentHistory[proposalHash] = paidRecord{blockHash: blockHash, blockHeight: height}
		return false
	}
	if rec.blockHash == blockHash {
		return false
	}
	if entry, ok := chain.GetBlockIndexByHash(rec.blockHash); ok && entry.InActive {
		return true
	}
	b.paymentHistory[proposalHash] = paidRecord{blockHash: blockHash, blockHeight: height}
	return false
}

func (b *FinalizedBudget) evictOutOfRangePayments() {
	for hash, rec := range b.paymentHistory {
		if rec.blockHeight < b.BlockStart || rec.blockHeight > b.BlockEnd() {
			delete(b.paymentHistory, hash)
		}
	}
}

// TxValidationResult is the outcome of validating a block's
// payment-bearing transaction against a finalized budget or against
// the manager as a whole.
type TxValidationResult int

const (
	TxValid TxValidationResult = iota
	TxInvalid
	TxDoublePayment
	TxVoteThreshold
)

func (r TxValidationResult) String() string {
	switch r {
	case TxValid:
		return "valid"
	case TxDoublePayment:
		return "double-payment"
	case TxVoteThreshold:
		return "vote-threshold-not-met"
	default:
		return "invalid"
	}
}

// IsTransactionValid indexes into the payment list by height, checks
// the double-payment cache, then scans tx's outputs from the last one
// backwards for an exact match on (script, amount).
func (b *FinalizedBudget) IsTransactionValid(chain ChainIndex, tx *wire.MsgTx, blockHash chainhash.Hash, height int32) TxValidationResult {
	if height < b.BlockStart || height > b.BlockEnd() {
		return TxInvalid
	}
	i := height - b.BlockStart
	payment := b.Payments[i]

	if b.IsPaidAlready(chain, payment.ProposalHash, blockHash, height) {
		return TxDoublePayment
	}

	for j := len(tx.TxOut) - 1; j >= 0; j-- {
		out := tx.TxOut[j]
		if out.Value == int64(payment.Amount) && bytes.Equal(out.PkScript, payment.PayeeScript) {
			return TxValid
		}
	}
	return TxInvalid
}
