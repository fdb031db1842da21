// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxProposalNameLen is the maximum length of a proposal's name.
	MaxProposalNameLen = 20

	// MaxProposalURLLen is the maximum length of a proposal's URL.
	MaxProposalURLLen = 64
)

// Proposal is a single funding request. It is created on first valid
// ingestion and mutated only by vote addition and validity-flag
// recomputation; its identity hash never changes.
type Proposal struct {
	Name        string
	URL         string
	PayeeScript []byte
	Amount      btcutil.Amount
	BlockStart  int32
	BlockEnd    int32
	FeeTxHash   chainhash.Hash
	CreateTime  time.Time

	// Votes is keyed by voter outpoint: each voter has at most one vote
	// on file, the most recent one accepted.
	Votes map[wire.OutPoint]*BudgetVote

	valid         bool
	invalidReason string

	// Allotted is the amount GetBudget admitted this proposal for in
	// the most recent allocation pass; zero if it was not admitted.
	Allotted btcutil.Amount
}

// NewProposal snaps a caller-supplied start height and payment count to
// the cycle grid and returns a well-formed-shaped (but not yet
// collateral-verified) Proposal.
func NewProposal(name, url string, payee []byte, amount btcutil.Amount, blockStart int32, paymentCount int32, cycleLength int32, createTime time.Time) *Proposal {
	cycleStart := blockStart - mod(blockStart, cycleLength)
	blockEnd := cycleStart + (cycleLength+1)*paymentCount
	return &Proposal{
		Name:        name,
		URL:         url,
		PayeeScript: payee,
		Amount:      amount,
		BlockStart:  cycleStart,
		BlockEnd:    blockEnd,
		CreateTime:  createTime,
		Votes:       make(map[wire.OutPoint]*BudgetVote),
		valid:       true,
	}
}

// copyProposal returns a copy of p whose Votes map holds independent
// copies of each vote, so a caller reading the result can never observe
// a later mutation of the stored proposal.
func copyProposal(p *Proposal) *Proposal {
	cp := *p
	cp.Votes = make(map[wire.OutPoint]*BudgetVote, len(p.Votes))
	for outpoint, vote := range p.Votes {
		voteCopy := *vote
		cp.Votes[outpoint] = &voteCopy
	}
	return &cp
}

func mod(a, m int32) int32 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Hash is the proposal's identity, derived over every field collateral
// must bind to. Two proposals with identical parameters collide by
// design: the collateral output, not the hash, is what makes forging
// one expensive.
func (p *Proposal) Hash() chainhash.Hash {
	var buf bytes.Buffer
	wire.WriteVarString(&buf, 0, p.Name)
	wire.WriteVarString(&buf, 0, p.URL)
	binary.Write(&buf, binary.LittleEndian, p.BlockStart)
	binary.Write(&buf, binary.LittleEndian, p.BlockEnd)
	binary.Write(&buf, binary.LittleEndian, int64(p.Amount))
	wire.WriteVarBytes(&buf, 0, p.PayeeScript)
	binary.Write(&buf, binary.LittleEndian, p.CreateTime.Unix())
	return chainhash.HashH(buf.Bytes())
}

// IsWellFormed checks the static shape of a proposal: independent of
// collateral, votes, or chain height.
func (p *Proposal) IsWellFormed(totalBudget btcutil.Amount) error {
	if len(p.Name) == 0 || len(p.Name) > MaxProposalNameLen {
		return newError(ErrWellFormedName, "proposal name must be 1-20 bytes", nil)
	}
	if len(p.URL) == 0 || len(p.URL) > MaxProposalURLLen {
		return newError(ErrWellFormedURL, "proposal URL must be 1-64 bytes", nil)
	}
	if p.Amount < MinProposalAmount || p.Amount > totalBudget {
		return newError(ErrWellFormedAmount, "proposal amount out of range", nil)
	}
	if p.BlockStart < 0 || p.BlockEnd < p.BlockStart {
		return newError(ErrWellFormedRange, "proposal block range is invalid", nil)
	}
	if !isSpendablePayee(p.PayeeScript) {
		return newError(ErrWellFormedPayee, "proposal payee must be a single, extractable destination", nil)
	}
	return nil
}

// isSpendablePayee rejects empty scripts, scripts that do not parse,
// and scripts that use OP_CHECKMULTISIG. It does not check that the
// script pays a single standard destination: any other script that
// parses is accepted.
func isSpendablePayee(script []byte) bool {
	if len(script) == 0 {
		return false
	}
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if tokenizer.Opcode() == txscript.OP_CHECKMULTISIG {
			return false
		}
	}
	return tokenizer.Err() == nil
}

// IsEstablished reports whether the proposal has existed long enough to
// be counted as passing.
func (p *Proposal) IsEstablished(now time.Time, establishmentWindow time.Duration) bool {
	return now.Sub(p.CreateTime) > establishmentWindow
}

// IsHeavilyDownvoted reports whether the proposal's net downvote has
// crossed 10% of the active masternode count.
func (p *Proposal) IsHeavilyDownvoted(enabledMasternodes int) bool {
	_, yeas, nays := p.tally()
	return nays-yeas > enabledMasternodes/10
}

// IsPassing is the predicate GetBudget uses to decide whether this
// proposal may be allocated funding for the candidate cycle
// [blockStart, blockEnd].
func (p *Proposal) IsPassing(blockStart, blockEnd int32, enabledMasternodes int, now time.Time, establishmentWindow time.Duration) bool {
	if !p.valid {
		return false
	}
	if p.BlockStart > blockStart || p.BlockEnd < blockEnd {
		return false
	}
	_, yeas, nays := p.tally()
	if yeas-nays <= enabledMasternodes/10 {
		return false
	}
	return p.IsEstablished(now, establishmentWindow)
}

// UpdateValid recomputes the sticky validity flag: heavily-downvoted or
// expired proposals are flagged invalid and stay that way until the
// next CheckAndRemove pass evicts them.
func (p *Proposal) UpdateValid(height int32, enabledMasternodes int) {
	if p.IsHeavilyDownvoted(enabledMasternodes) {
		p.valid = false
		p.invalidReason = "heavily downvoted"
		return
	}
	if p.BlockEnd < height {
		p.valid = false
		p.invalidReason = "expired"
		return
	}
	p.valid = true
	p.invalidReason = ""
}

// Valid reports the proposal's current sticky validity flag.
func (p *Proposal) Valid() bool { return p.valid }

// InvalidReason explains the most recent UpdateValid verdict, if any.
func (p *Proposal) InvalidReason() string { return p.invalidReason }

// AddOrUpdateVote enforces per-voter monotonic timestamps and the
// minimum update interval before replacing the stored vote, keyed by
// voter outpoint.
func (p *Proposal) AddOrUpdateVote(vote *BudgetVote, now time.Time) error {
	existing, ok := p.Votes[vote.Voter]
	var storedTime time.Time
	if ok {
		storedTime = existing.Time
	}
	if err := voteTimingError(storedTime, vote.Time, now); err != nil {
		return err
	}
	p.Votes[vote.Voter] = vote
	return nil
}

// CleanAndRemove refreshes each stored vote's validity flag against the
// current masternode directory.
func (p *Proposal) CleanAndRemove(dir MasternodeDirectory) {
	for outpoint, vote := range p.Votes {
		_, ok := dir.Find(outpoint)
		vote.Valid = ok
	}
}

// tally returns (abstains, yeas, nays) counting only currently-valid
// votes.
func (p *Proposal) tally() (abstains, yeas, nays int) {
	for _, v := range p.Votes {
		if !v.Valid {
			continue
		}
		switch v.Direction {
		case VoteYes:
			yeas++
		case VoteNo:
			nays++
		default:
			abstains++
		}
	}
	return
}

// YeasNays returns the valid yes and no vote counts.
func (p *Proposal) YeasNays() (yeas, nays int) {
	_, yeas, nays = p.tally()
	return
}

// NetYes is yeas minus nays, the quantity proposals are ranked by.
func (p *Proposal) NetYes() int {
	yeas, nays := p.YeasNays()
	return yeas - nays
}

// PtrHigherYes orders proposals by descending net-yes, breaking ties by
// descending collateral-tx hash so every node resolves ties the same
// way.
func PtrHigherYes(a, b *Proposal) bool {
	an, bn := a.NetYes(), b.NetYes()
	if an != bn {
		return an > bn
	}
	return bytes.Compare(a.FeeTxHash[:], b.FeeTxHash[:]) > 0
}
