// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/masternode-network/budgetd/budget"
)

// noopWallet satisfies budget.Wallet for a node that never submits its
// own finalized budgets. A deployment running in ModeSuggest must
// replace this with a walletadapter.Wallet wired to its own coin
// selection and signing backend.
type noopWallet struct{}

func (noopWallet) CreateFundedOpReturnTx(chainhash.Hash, btcutil.Amount) (chainhash.Hash, error) {
	return chainhash.Hash{}, budget.Error{
		ErrorCode:   budget.ErrParse,
		Description: "no wallet backend configured for governance collateral transactions",
	}
}

// emptyMasternodeDirectory satisfies budget.MasternodeDirectory for a
// node that has not yet been wired to the host's real masternode
// list. Every vote is treated as coming from an unknown voter until
// this is replaced.
type emptyMasternodeDirectory struct{}

func (emptyMasternodeDirectory) Find(wire.OutPoint) (*budget.Masternode, bool) { return nil, false }
func (emptyMasternodeDirectory) CountEnabled(uint32) int                      { return 0 }
func (emptyMasternodeDirectory) AskForMN(budget.Peer, wire.OutPoint)          {}

// loggingNetwork satisfies budget.Network by logging every relay and
// push it is asked to perform. A deployment replaces this with an
// adapter over its own peer-to-peer transport.
type loggingNetwork struct{}

func (loggingNetwork) RelayInv(inv budget.InvVect) {
	log.Debugf("relay: type=%d hash=%v", inv.Type, inv.Hash)
}
func (loggingNetwork) PushInventory(peer budget.Peer, inv budget.InvVect) {
	log.Debugf("push inventory to peer %d: type=%d hash=%v", peer.ID(), inv.Type, inv.Hash)
}
func (loggingNetwork) PushMessage(peer budget.Peer, msg interface{}) {
	log.Debugf("push message to peer %d: %T", peer.ID(), msg)
}
func (loggingNetwork) ForEachNode(func(budget.Peer)) {}
func (loggingNetwork) Misbehaving(peerID int32, score int32) {
	log.Warnf("peer %d misbehavior score increased by %d", peerID, score)
}
