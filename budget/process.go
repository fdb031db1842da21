// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ProcessMessage is the single entry point inbound governance traffic
// is routed through. It never panics on an unrecognized message type;
// the transport layer is expected to have already dispatched on
// command string before calling here. fullySynced reflects the host's
// own masternode-sync progress, exactly as NewBlock's fullySynced
// parameter does: bad-signature misbehavior scoring is suppressed
// until it is true, since an initial-sync node cannot yet tell an
// honest vote for a proposal it hasn't synced from a forged one.
func (m *Manager) ProcessMessage(peer Peer, msg interface{}, height int32, fullySynced bool) error {
	switch v := msg.(type) {
	case *MsgBudgetVoteSync:
		return m.handleVoteSync(peer, v)
	case *MsgBudgetProposal:
		return m.handleProposal(peer, v, height)
	case *MsgBudgetVote:
		return m.handleVote(peer, v, fullySynced)
	case *MsgFinalBudget:
		return m.handleFinalBudget(peer, v, height)
	case *MsgFinalBudgetVote:
		return m.handleFinalBudgetVote(peer, v, fullySynced)
	default:
		return nil
	}
}

// handleVoteSync answers a peer's BUDGETVOTESYNC request. A partial
// request (a specific hash) is always honored; it is how a peer asks
// for the single target behind an orphan vote it just received. A
// full request (the null hash) asks for everything this node knows,
// so on EnforceSyncRequestLimit networks each peer gets exactly one
// before further requests score misbehavior instead of triggering
// another full sync.
func (m *Manager) handleVoteSync(peer Peer, msg *MsgBudgetVoteSync) error {
	if !msg.IsFull() {
		hash := msg.Hash
		return m.Sync(peer, &hash, false)
	}

	if m.params.EnforceSyncRequestLimit && !m.fulfillSyncRequestOnce(peer.ID()) {
		m.recordRejected(ErrSyncRequestRepeated)
		m.recordMisbehaving(peer, 20)
		return newError(ErrSyncRequestRepeated, "peer has already had a full sync request fulfilled", nil)
	}
	return m.Sync(peer, nil, false)
}

func (m *Manager) handleProposal(peer Peer, msg *MsgBudgetProposal, height int32) error {
	p := &Proposal{
		Name:        msg.Name,
		URL:         msg.URL,
		PayeeScript: msg.PayeeScript,
		Amount:      btcutil.Amount(msg.Amount),
		BlockStart:  msg.BlockStart,
		BlockEnd:    msg.BlockEnd,
		FeeTxHash:   msg.FeeTxHash,
		CreateTime:  msg.CreateTime,
		Votes:       make(map[wire.OutPoint]*BudgetVote),
	}
	added, err := m.AddProposal(p, height)
	if err != nil {
		m.recordRejected(errorCode(err))
		if errorCode(err).IsMalicious() {
			m.recordMisbehaving(peer, 20)
		}
		return err
	}
	if added {
		m.net.RelayInv(InvVect{Type: InvProposal, Hash: p.Hash()})
	}
	return nil
}

func (m *Manager) handleFinalBudget(peer Peer, msg *MsgFinalBudget, height int32) error {
	b := NewFinalizedBudget(msg.Name, msg.BlockStart, msg.Payments, m.now())
	b.FeeTxHash = msg.FeeTxHash
	added, err := m.AddFinalizedBudget(b, height)
	if err != nil {
		m.recordRejected(errorCode(err))
		if errorCode(err).IsMalicious() {
			m.recordMisbehaving(peer, 20)
		}
		return err
	}
	if added {
		m.net.RelayInv(InvVect{Type: InvFinalizedBudget, Hash: b.Hash()})
	}
	return nil
}

func (m *Manager) handleVote(peer Peer, msg *MsgBudgetVote, fullySynced bool) error {
	vote := &BudgetVote{
		Voter:        msg.Voter,
		ProposalHash: msg.ProposalHash,
		Direction:    VoteDirection(msg.Direction),
		Time:         time.Unix(msg.Time, 0),
		Signature:    msg.Signature,
	}
	hash := vote.Hash()

	m.votesMu.Lock()
	if _, seen := m.seenProposalVotes[hash]; seen {
		m.votesMu.Unlock()
		return newError(ErrAlreadySeen, "vote already processed", nil)
	}
	m.votesMu.Unlock()

	mn, ok := m.mnDir.Find(vote.Voter)
	if !ok {
		m.mnDir.AskForMN(peer, vote.Voter)
		return newError(ErrVoteUnknownVoter, "vote references an unknown masternode", nil)
	}
	if !m.crypto.Verify(vote.SigningMessage(), vote.Signature, mn.PubKey) {
		m.recordRejected(ErrVoteBadSignature)
		if fullySynced {
			m.recordMisbehaving(peer, 20)
		}
		return newError(ErrVoteBadSignature, "vote signature does not verify", nil)
	}

	var voteErr error
	found := m.withProposal(vote.ProposalHash, func(p *Proposal) {
		voteErr = p.AddOrUpdateVote(vote, m.now())
	})
	if !found {
		m.parkOrphanProposalVote(vote)
		if !m.askedRecently(vote.ProposalHash) {
			m.markAsked(vote.ProposalHash)
			m.net.PushMessage(peer, &MsgBudgetVoteSync{Hash: vote.ProposalHash})
		}
		return newError(ErrVoteUnknownTarget, "vote references an unknown proposal", nil)
	}
	if voteErr != nil {
		m.recordRejected(errorCode(voteErr))
		return voteErr
	}

	m.votesMu.Lock()
	m.seenProposalVotes[hash] = vote
	m.votesMu.Unlock()

	m.recordVoteProcessed("proposal")
	m.net.RelayInv(InvVect{Type: InvBudgetVote, Hash: hash})
	m.refreshGaugeMetrics()
	return nil
}

func (m *Manager) handleFinalBudgetVote(peer Peer, msg *MsgFinalBudgetVote, fullySynced bool) error {
	vote := &FinalizedBudgetVote{
		Voter:      msg.Voter,
		BudgetHash: msg.BudgetHash,
		Time:       time.Unix(msg.Time, 0),
		Signature:  msg.Signature,
	}
	hash := vote.Hash()

	m.finalizedVotesMu.Lock()
	if _, seen := m.seenFinalizedVotes[hash]; seen {
		m.finalizedVotesMu.Unlock()
		return newError(ErrAlreadySeen, "vote already processed", nil)
	}
	m.finalizedVotesMu.Unlock()

	mn, ok := m.mnDir.Find(vote.Voter)
	if !ok {
		m.mnDir.AskForMN(peer, vote.Voter)
		return newError(ErrVoteUnknownVoter, "vote references an unknown masternode", nil)
	}
	if !m.crypto.Verify(vote.SigningMessage(), vote.Signature, mn.PubKey) {
		m.recordRejected(ErrVoteBadSignature)
		if fullySynced {
			m.recordMisbehaving(peer, 20)
		}
		return newError(ErrVoteBadSignature, "vote signature does not verify", nil)
	}

	var voteErr error
	found := m.withFinalizedBudget(vote.BudgetHash, func(b *FinalizedBudget) {
		voteErr = b.AddOrUpdateVote(vote, m.now())
	})
	if !found {
		m.parkOrphanFinalizedVote(vote)
		if !m.askedRecently(vote.BudgetHash) {
			m.markAsked(vote.BudgetHash)
			m.net.PushMessage(peer, &MsgBudgetVoteSync{Hash: vote.BudgetHash})
		}
		return newError(ErrVoteUnknownTarget, "vote references an unknown finalized budget", nil)
	}
	if voteErr != nil {
		m.recordRejected(errorCode(voteErr))
		return voteErr
	}

	m.finalizedVotesMu.Lock()
	m.seenFinalizedVotes[hash] = vote
	m.finalizedVotesMu.Unlock()

	m.recordVoteProcessed("finalized-budget")
	m.net.RelayInv(InvVect{Type: InvFinalizedBudgetVote, Hash: hash})
	m.refreshGaugeMetrics()
	return nil
}

func (m *Manager) parkOrphanProposalVote(vote *BudgetVote) {
	m.votesMu.Lock()
	m.orphanProposalVotes[vote.ProposalHash] = append(m.orphanProposalVotes[vote.ProposalHash], vote)
	m.votesMu.Unlock()
}

func (m *Manager) parkOrphanFinalizedVote(vote *FinalizedBudgetVote) {
	m.finalizedVotesMu.Lock()
	m.orphanFinalizedVotes[vote.BudgetHash] = append(m.orphanFinalizedVotes[vote.BudgetHash], vote)
	m.finalizedVotesMu.Unlock()
}

// checkOrphanProposalVotes is called after a proposal with the given
// hash is newly inserted: it drains any votes that had arrived before
// the proposal did and applies them now.
func (m *Manager) checkOrphanProposalVotes(hash chainhash.Hash) {
	m.votesMu.Lock()
	pending := m.orphanProposalVotes[hash]
	delete(m.orphanProposalVotes, hash)
	m.votesMu.Unlock()
	if len(pending) == 0 {
		return
	}

	var applied []*BudgetVote
	m.withProposal(hash, func(p *Proposal) {
		for _, vote := range pending {
			if err := p.AddOrUpdateVote(vote, m.now()); err != nil {
				continue
			}
			applied = append(applied, vote)
		}
	})
	for _, vote := range applied {
		m.votesMu.Lock()
		m.seenProposalVotes[vote.Hash()] = vote
		m.votesMu.Unlock()
		m.recordVoteProcessed("proposal")
	}
	m.refreshGaugeMetrics()
}

// checkOrphanFinalizedVotes is checkOrphanProposalVotes's counterpart
// for finalized-budget votes.
func (m *Manager) checkOrphanFinalizedVotes(hash chainhash.Hash) {
	m.finalizedVotesMu.Lock()
	pending := m.orphanFinalizedVotes[hash]
	delete(m.orphanFinalizedVotes, hash)
	m.finalizedVotesMu.Unlock()
	if len(pending) == 0 {
		return
	}

	var applied []*FinalizedBudgetVote
	m.withFinalizedBudget(hash, func(b *FinalizedBudget) {
		for _, vote := range pending {
			if err := b.AddOrUpdateVote(vote, m.now()); err != nil {
				continue
			}
			applied = append(applied, vote)
		}
	})
	for _, vote := range applied {
		m.finalizedVotesMu.Lock()
		m.seenFinalizedVotes[vote.Hash()] = vote
		m.finalizedVotesMu.Unlock()
		m.recordVoteProcessed("finalized-budget")
	}
	m.refreshGaugeMetrics()
}

// errorCode extracts the ErrorCode carried by an Error, defaulting to
// ErrParse for any other error kind (there should be none: every
// rejection path in this package returns an Error).
func errorCode(err error) ErrorCode {
	if e, ok := err.(Error); ok {
		return e.ErrorCode
	}
	return ErrParse
}
