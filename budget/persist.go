// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// snapshotMagic is the fixed header every budget.dat-style snapshot
// opens with.
const snapshotMagic = "MasternodeBudget"

// DumpBudgets serializes every proposal, finalized budget, and their
// votes to w in the snapshot format: the magic string, the network's
// 4-byte magic, the serialized body, and a
// trailing 32-byte hash of that body.
func (m *Manager) DumpBudgets(w io.Writer) error {
	var body bytes.Buffer

	m.proposalsMu.RLock()
	if err := writeVarInt(&body, uint64(len(m.proposals))); err != nil {
		m.proposalsMu.RUnlock()
		return err
	}
	for _, p := range m.proposals {
		if err := writeProposal(&body, p); err != nil {
			m.proposalsMu.RUnlock()
			return err
		}
	}
	m.proposalsMu.RUnlock()

	m.budgetsMu.RLock()
	if err := writeVarInt(&body, uint64(len(m.budgets))); err != nil {
		m.budgetsMu.RUnlock()
		return err
	}
	for _, b := range m.budgets {
		if err := writeFinalizedBudget(&body, b); err != nil {
			m.budgetsMu.RUnlock()
			return err
		}
	}
	m.budgetsMu.RUnlock()

	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.params.NetworkMagic); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	checksum := chainhash.HashB(body.Bytes())
	_, err := w.Write(checksum)
	return err
}

// LoadBudgets reads a snapshot written by DumpBudgets and re-inserts
// every proposal and finalized budget it contains through AddProposal
// and AddFinalizedBudget, so collateral is re-verified against the
// chain as it stands at height rather than trusted blindly from disk.
// A proposal or budget that no longer validates (e.g. its collateral
// transaction is no longer found on the active chain) is silently
// dropped, matching a fresh sync
// from peers.
func (m *Manager) LoadBudgets(r io.Reader, height int32) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(raw) < len(snapshotMagic)+4+chainhash.HashSize {
		return newError(ErrParse, "snapshot is too short to contain a header and checksum", nil)
	}

	magic := string(raw[:len(snapshotMagic)])
	if magic != snapshotMagic {
		return newError(ErrParse, "snapshot magic does not match", nil)
	}
	raw = raw[len(snapshotMagic):]

	netMagic := binary.LittleEndian.Uint32(raw[:4])
	if netMagic != m.params.NetworkMagic {
		return newError(ErrParse, "snapshot network magic does not match", nil)
	}
	raw = raw[4:]

	body := raw[:len(raw)-chainhash.HashSize]
	checksum := raw[len(raw)-chainhash.HashSize:]
	if !bytes.Equal(chainhash.HashB(body), checksum) {
		return newError(ErrParse, "snapshot checksum does not match its body", nil)
	}

	r2 := bytes.NewReader(body)

	nProposals, err := wire.ReadVarInt(r2, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < nProposals; i++ {
		p, err := readProposal(r2)
		if err != nil {
			return err
		}
		m.AddProposal(p, height)
	}

	nBudgets, err := wire.ReadVarInt(r2, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < nBudgets; i++ {
		b, err := readFinalizedBudget(r2)
		if err != nil {
			return err
		}
		m.AddFinalizedBudget(b, height)
	}

	return nil
}

func writeVarInt(w io.Writer, n uint64) error {
	return wire.WriteVarInt(w, 0, n)
}

func writeProposal(w io.Writer, p *Proposal) error {
	if err := wire.WriteVarString(w, 0, p.Name); err != nil {
		return err
	}
	if err := wire.WriteVarString(w, 0, p.URL); err != nil {
		return err
	}
	if err := wire.WriteElements(w, p.BlockStart, p.BlockEnd, int64(p.Amount)); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, 0, p.PayeeScript); err != nil {
		return err
	}
	if _, err := w.Write(p.FeeTxHash[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, p.CreateTime.Unix()); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(p.Votes))); err != nil {
		return err
	}
	for _, v := range p.Votes {
		if err := writeBudgetVote(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readProposal(r io.Reader) (*Proposal, error) {
	p := &Proposal{Votes: make(map[wire.OutPoint]*BudgetVote), valid: true}
	var err error
	if p.Name, err = wire.ReadVarString(r, 0); err != nil {
		return nil, err
	}
	if p.URL, err = wire.ReadVarString(r, 0); err != nil {
		return nil, err
	}
	var amount int64
	if err = wire.ReadElements(r, &p.BlockStart, &p.BlockEnd, &amount); err != nil {
		return nil, err
	}
	p.Amount = btcutil.Amount(amount)
	if p.PayeeScript, err = wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "payee"); err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, p.FeeTxHash[:]); err != nil {
		return nil, err
	}
	var createUnix int64
	if err = binary.Read(r, binary.LittleEndian, &createUnix); err != nil {
		return nil, err
	}
	p.CreateTime = time.Unix(createUnix, 0)

	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		v, err := readBudgetVote(r)
		if err != nil {
			return nil, err
		}
		p.Votes[v.Voter] = v
	}
	return p, nil
}

func writeBudgetVote(w io.Writer, v *BudgetVote) error {
	if err := wire.WriteElements(w, v.Voter.Hash, v.Voter.Index); err != nil {
		return err
	}
	if _, err := w.Write(v.ProposalHash[:]); err != nil {
		return err
	}
	if err := wire.WriteElements(w, v.Direction, v.Time.Unix()); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, v.Signature)
}

func readBudgetVote(r io.Reader) (*BudgetVote, error) {
	v := &BudgetVote{}
	if err := wire.ReadElements(r, &v.Voter.Hash, &v.Voter.Index); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, v.ProposalHash[:]); err != nil {
		return nil, err
	}
	var t int64
	if err := wire.ReadElements(r, &v.Direction, &t); err != nil {
		return nil, err
	}
	v.Time = time.Unix(t, 0)
	sig, err := wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "signature")
	if err != nil {
		return nil, err
	}
	v.Signature = sig
	return v, nil
}

func writeFinalizedBudget(w io.Writer, b *FinalizedBudget) error {
	if err := wire.WriteVarString(w, 0, b.Name); err != nil {
		return err
	}
	if err := wire.WriteElement(w, b.BlockStart); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(b.Payments))); err != nil {
		return err
	}
	for _, p := range b.Payments {
		if _, err := w.Write(p.ProposalHash[:]); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, p.PayeeScript); err != nil {
			return err
		}
		if err := wire.WriteElement(w, int64(p.Amount)); err != nil {
			return err
		}
	}
	if _, err := w.Write(b.FeeTxHash[:]); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(b.Votes))); err != nil {
		return err
	}
	for _, v := range b.Votes {
		if err := writeFinalizedBudgetVote(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readFinalizedBudget(r io.Reader) (*FinalizedBudget, error) {
	b := &FinalizedBudget{Votes: make(map[wire.OutPoint]*FinalizedBudgetVote), paymentHistory: make(map[chainhash.Hash]paidRecord), valid: true}
	var err error
	if b.Name, err = wire.ReadVarString(r, 0); err != nil {
		return nil, err
	}
	if err = wire.ReadElement(r, &b.BlockStart); err != nil {
		return nil, err
	}
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	b.Payments = make([]Payment, n)
	for i := range b.Payments {
		if _, err = io.ReadFull(r, b.Payments[i].ProposalHash[:]); err != nil {
			return nil, err
		}
		if b.Payments[i].PayeeScript, err = wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "payee"); err != nil {
			return nil, err
		}
		var amount int64
		if err = wire.ReadElement(r, &amount); err != nil {
			return nil, err
		}
		b.Payments[i].Amount = btcutil.Amount(amount)
	}
	if _, err = io.ReadFull(r, b.FeeTxHash[:]); err != nil {
		return nil, err
	}
	nv, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nv; i++ {
		v, err := readFinalizedBudgetVote(r)
		if err != nil {
			return nil, err
		}
		b.Votes[v.Voter] = v
	}
	return b, nil
}

func writeFinalizedBudgetVote(w io.Writer, v *FinalizedBudgetVote) error {
	if err := wire.WriteElements(w, v.Voter.Hash, v.Voter.Index); err != nil {
		return err
	}
	if _, err := w.Write(v.BudgetHash[:]); err != nil {
		return err
	}
	if err := wire.WriteElement(w, v.Time.Unix()); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, v.Signature)
}

func readFinalizedBudgetVote(r io.Reader) (*FinalizedBudgetVote, error) {
	v := &FinalizedBudgetVote{}
	if err := wire.ReadElements(r, &v.Voter.Hash, &v.Voter.Index); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, v.BudgetHash[:]); err != nil {
		return nil, err
	}
	var t int64
	if err := wire.ReadElement(r, &t); err != nil {
		return nil, err
	}
	v.Time = time.Unix(t, 0)
	sig, err := wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "signature")
	if err != nil {
		return nil, err
	}
	v.Signature = sig
	return v, nil
}
