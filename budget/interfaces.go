// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockIndexEntry is the subset of a block's chain-index metadata the
// governance subsystem needs: its height, timestamp, and active-chain
// membership.
type BlockIndexEntry struct {
	Hash      chainhash.Hash
	Height    int32
	Time      time.Time
	InActive  bool
}

// ChainIndex is the external blockchain index this package consults to
// resolve transactions and blocks. It never mutates chain state; every
// method is expected to be safe for concurrent use.
type ChainIndex interface {
	// GetTransactionWithBlock returns a confirmed transaction and the
	// hash of the block that contains it, along with how many blocks
	// have been mined on top of that block (1 for the block itself).
	// It returns ok=false if the transaction is unknown or unconfirmed.
	GetTransactionWithBlock(txHash chainhash.Hash) (tx *wire.MsgTx, blockHash chainhash.Hash, confirmations int32, ok bool)

	// GetBlockIndexByHash resolves a block hash to its index entry.
	GetBlockIndexByHash(blockHash chainhash.Hash) (entry BlockIndexEntry, ok bool)

	// BestHeight returns the height of the current chain tip.
	BestHeight() int32

	// BlockValue returns the total subsidy (block reward plus any
	// budget allotment) payable at the given height.
	BlockValue(height int32) btcutil.Amount
}

// Wallet is the external collaborator that builds and broadcasts the
// collateral-paying transactions a proposal or finalized budget needs
// before it can be admitted into the store.
type Wallet interface {
	// CreateFundedOpReturnTx builds, signs, and submits to the local
	// mempool a transaction whose sole unspendable output commits to
	// bindingHash and pays at least fee. It returns the id of the
	// broadcast transaction.
	CreateFundedOpReturnTx(bindingHash chainhash.Hash, fee btcutil.Amount) (chainhash.Hash, error)
}

// Masternode is the subset of masternode-directory state the governance
// subsystem needs about a single voter.
type Masternode struct {
	Outpoint        wire.OutPoint
	PubKey          *btcec.PublicKey
	ProtocolVersion uint32
	Enabled         bool
	Vin             *wire.OutPoint
}

// MasternodeDirectory authenticates voters and answers questions about
// the currently enabled masternode set.
type MasternodeDirectory interface {
	// Find resolves a voter outpoint to its masternode record.
	Find(outpoint wire.OutPoint) (mn *Masternode, ok bool)

	// CountEnabled returns the number of masternodes enabled at or
	// above the given protocol version.
	CountEnabled(protocolVersion uint32) int

	// AskForMN requests the masternode announcement for outpoint from
	// peer, because a vote referencing it arrived before the
	// announcement did.
	AskForMN(peer Peer, outpoint wire.OutPoint)
}

// Peer is the minimal identity of a network connection the governance
// subsystem needs in order to route sync requests and misbehavior
// scoring back to the transport layer.
type Peer interface {
	ID() int32
	ProtocolVersion() uint32
}

// InvVect names one piece of relayable governance data.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// InvType enumerates the governance inventory kinds relayed over the
// network.
type InvType int

const (
	InvProposal InvType = iota
	InvFinalizedBudget
	InvBudgetVote
	InvFinalizedBudgetVote
)

// Network is the external peer-to-peer transport. The governance
// subsystem never opens or closes connections itself; it only asks the
// transport to relay or push data and to adjust a peer's misbehavior
// score.
type Network interface {
	RelayInv(inv InvVect)
	PushInventory(peer Peer, inv InvVect)
	PushMessage(peer Peer, msg interface{})
	ForEachNode(fn func(Peer))
	Misbehaving(peerID int32, score int32)
}

// Crypto is the external signing and verification primitive. Votes and
// collateral-binding proofs are signed and checked through it rather
// than through package-local key handling.
type Crypto interface {
	Sign(message []byte, key *btcec.PrivateKey) ([]byte, error)
	Verify(message []byte, sig []byte, pubKey *btcec.PublicKey) bool
}
