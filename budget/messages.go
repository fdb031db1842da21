// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Command strings for the five governance message types.
const (
	CmdBudgetVoteSync   = "budgetvotesync"
	CmdBudgetProposal   = "budgetproposal"
	CmdBudgetVote       = "budgetvote"
	CmdFinalBudget      = "finalbudget"
	CmdFinalBudgetVote  = "finalbudgetvote"
)

// MsgBudgetVoteSync requests a full or (if Hash is the zero hash,
// meaning "full") filtered dump of known governance data.
type MsgBudgetVoteSync struct {
	Hash chainhash.Hash
}

func (m *MsgBudgetVoteSync) Command() string { return CmdBudgetVoteSync }

func (m *MsgBudgetVoteSync) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	_, err := w.Write(m.Hash[:])
	return err
}

func (m *MsgBudgetVoteSync) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	_, err := io.ReadFull(r, m.Hash[:])
	return err
}

// IsFull reports whether this is a request for everything (the null
// hash), rather than a filter on one target.
func (m *MsgBudgetVoteSync) IsFull() bool {
	return m.Hash == chainhash.Hash{}
}

// MsgBudgetProposal is the broadcast serialization of a funding
// request.
type MsgBudgetProposal struct {
	Name        string
	URL         string
	CreateTime  time.Time
	BlockStart  int32
	BlockEnd    int32
	Amount      int64
	PayeeScript []byte
	FeeTxHash   chainhash.Hash
}

func (m *MsgBudgetProposal) Command() string { return CmdBudgetProposal }

func (m *MsgBudgetProposal) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.WriteVarString(w, pver, m.Name); err != nil {
		return err
	}
	if err := wire.WriteVarString(w, pver, m.URL); err != nil {
		return err
	}
	if err := wire.WriteElements(w, m.CreateTime.Unix(), m.BlockStart, m.BlockEnd, m.Amount); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, m.PayeeScript); err != nil {
		return err
	}
	_, err := w.Write(m.FeeTxHash[:])
	return err
}

func (m *MsgBudgetProposal) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	var err error
	if m.Name, err = wire.ReadVarString(r, pver); err != nil {
		return err
	}
	if m.URL, err = wire.ReadVarString(r, pver); err != nil {
		return err
	}
	var createUnix int64
	if err = wire.ReadElements(r, &createUnix, &m.BlockStart, &m.BlockEnd, &m.Amount); err != nil {
		return err
	}
	m.CreateTime = time.Unix(createUnix, 0)
	if m.PayeeScript, err = wire.ReadVarBytes(r, pver, wire.MaxMessagePayload, "payee"); err != nil {
		return err
	}
	_, err = io.ReadFull(r, m.FeeTxHash[:])
	return err
}

// MsgBudgetVote is the wire form of a signed proposal vote.
type MsgBudgetVote struct {
	Voter        wire.OutPoint
	ProposalHash chainhash.Hash
	Direction    int32
	Time         int64
	Signature    []byte
}

func (m *MsgBudgetVote) Command() string { return CmdBudgetVote }

func (m *MsgBudgetVote) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.WriteElements(w, m.Voter.Hash, m.Voter.Index); err != nil {
		return err
	}
	if _, err := w.Write(m.ProposalHash[:]); err != nil {
		return err
	}
	if err := wire.WriteElements(w, m.Direction, m.Time); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, m.Signature)
}

func (m *MsgBudgetVote) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.ReadElements(r, &m.Voter.Hash, &m.Voter.Index); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, m.ProposalHash[:]); err != nil {
		return err
	}
	if err := wire.ReadElements(r, &m.Direction, &m.Time); err != nil {
		return err
	}
	var err error
	m.Signature, err = wire.ReadVarBytes(r, pver, wire.MaxMessagePayload, "signature")
	return err
}

// MsgFinalBudget is the broadcast serialization of a finalized payment
// slate.
type MsgFinalBudget struct {
	Name       string
	BlockStart int32
	Payments   []Payment
	FeeTxHash  chainhash.Hash
}

func (m *MsgFinalBudget) Command() string { return CmdFinalBudget }

func (m *MsgFinalBudget) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.WriteVarString(w, pver, m.Name); err != nil {
		return err
	}
	if err := wire.WriteElement(w, m.BlockStart); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, pver, uint64(len(m.Payments))); err != nil {
		return err
	}
	for _, p := range m.Payments {
		if _, err := w.Write(p.ProposalHash[:]); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, pver, p.PayeeScript); err != nil {
			return err
		}
		if err := wire.WriteElement(w, int64(p.Amount)); err != nil {
			return err
		}
	}
	_, err := w.Write(m.FeeTxHash[:])
	return err
}

func (m *MsgFinalBudget) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	var err error
	if m.Name, err = wire.ReadVarString(r, pver); err != nil {
		return err
	}
	if err = wire.ReadElement(r, &m.BlockStart); err != nil {
		return err
	}
	n, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	m.Payments = make([]Payment, n)
	for i := range m.Payments {
		if _, err = io.ReadFull(r, m.Payments[i].ProposalHash[:]); err != nil {
			return err
		}
		if m.Payments[i].PayeeScript, err = wire.ReadVarBytes(r, pver, wire.MaxMessagePayload, "payee"); err != nil {
			return err
		}
		var amount int64
		if err = wire.ReadElement(r, &amount); err != nil {
			return err
		}
		m.Payments[i].Amount = btcutil.Amount(amount)
	}
	_, err = io.ReadFull(r, m.FeeTxHash[:])
	return err
}

// MsgFinalBudgetVote is the wire form of a signed finalized-budget
// vote.
type MsgFinalBudgetVote struct {
	Voter      wire.OutPoint
	BudgetHash chainhash.Hash
	Time       int64
	Signature  []byte
}

func (m *MsgFinalBudgetVote) Command() string { return CmdFinalBudgetVote }

func (m *MsgFinalBudgetVote) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.WriteElements(w, m.Voter.Hash, m.Voter.Index); err != nil {
		return err
	}
	if _, err := w.Write(m.BudgetHash[:]); err != nil {
		return err
	}
	if err := wire.WriteElement(w, m.Time); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, m.Signature)
}

func (m *MsgFinalBudgetVote) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.ReadElements(r, &m.Voter.Hash, &m.Voter.Index); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, m.BudgetHash[:]); err != nil {
		return err
	}
	if err := wire.ReadElement(r, &m.Time); err != nil {
		return err
	}
	var err error
	m.Signature, err = wire.ReadVarBytes(r, pver, wire.MaxMessagePayload, "signature")
	return err
}

// SyncStatusCount is the terminator emitted at the end of a Sync pass,
// naming the phase and how many items were pushed.
type SyncStatusCount struct {
	Phase string
	Count int32
}

const (
	SyncPhaseBudgetProposals      = "MASTERNODE_SYNC_BUDGET_PROP"
	SyncPhaseBudgetFinalizedVotes = "MASTERNODE_SYNC_BUDGET_FIN"
)
