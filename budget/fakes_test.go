// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// fakeChainIndex is an in-memory ChainIndex stand-in: tests register
// transactions and block index entries directly rather than standing
// up a real chain backend.
type fakeChainIndex struct {
	mu          sync.Mutex
	txs         map[chainhash.Hash]fakeTxEntry
	blocks      map[chainhash.Hash]BlockIndexEntry
	bestHeight  int32
	blockValue  btcutil.Amount
}

type fakeTxEntry struct {
	tx            *wire.MsgTx
	blockHash     chainhash.Hash
	confirmations int32
}

func newFakeChainIndex() *fakeChainIndex {
	return &fakeChainIndex{
		txs:    make(map[chainhash.Hash]fakeTxEntry),
		blocks: make(map[chainhash.Hash]BlockIndexEntry),
	}
}

func (f *fakeChainIndex) addBlock(entry BlockIndexEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[entry.Hash] = entry
}

func (f *fakeChainIndex) addTx(hash chainhash.Hash, tx *wire.MsgTx, blockHash chainhash.Hash, confirmations int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[hash] = fakeTxEntry{tx: tx, blockHash: blockHash, confirmations: confirmations}
}

func (f *fakeChainIndex) GetTransactionWithBlock(txHash chainhash.Hash) (*wire.MsgTx, chainhash.Hash, int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.txs[txHash]
	if !ok {
		return nil, chainhash.Hash{}, 0, false
	}
	return e.tx, e.blockHash, e.confirmations, true
}

func (f *fakeChainIndex) GetBlockIndexByHash(blockHash chainhash.Hash) (BlockIndexEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.blocks[blockHash]
	return e, ok
}

func (f *fakeChainIndex) BestHeight() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bestHeight
}

func (f *fakeChainIndex) BlockValue(height int32) btcutil.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockValue
}

// fakeMasternodeDirectory is an in-memory MasternodeDirectory backed by
// the masternodes a test adds; CountEnabled counts those marked Enabled
// at or above the requested protocol version.
type fakeMasternodeDirectory struct {
	mu      sync.Mutex
	nodes   map[wire.OutPoint]*Masternode
	askedFn func(peer Peer, outpoint wire.OutPoint)
}

func newFakeMasternodeDirectory() *fakeMasternodeDirectory {
	return &fakeMasternodeDirectory{nodes: make(map[wire.OutPoint]*Masternode)}
}

func (f *fakeMasternodeDirectory) add(mn *Masternode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[mn.Outpoint] = mn
}

func (f *fakeMasternodeDirectory) Find(outpoint wire.OutPoint) (*Masternode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mn, ok := f.nodes[outpoint]
	return mn, ok
}

func (f *fakeMasternodeDirectory) CountEnabled(protocolVersion uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, mn := range f.nodes {
		if mn.Enabled && mn.ProtocolVersion >= protocolVersion {
			n++
		}
	}
	return n
}

func (f *fakeMasternodeDirectory) AskForMN(peer Peer, outpoint wire.OutPoint) {
	if f.askedFn != nil {
		f.askedFn(peer, outpoint)
	}
}

// fakeNetwork records every call made against it, so tests can assert
// on what the manager tried to relay or push.
type fakeNetwork struct {
	mu            sync.Mutex
	relayed       []InvVect
	pushed        []pushedMessage
	misbehaving   []misbehavingCall
	peers         []Peer
}

type pushedMessage struct {
	peer Peer
	msg  interface{}
}

type misbehavingCall struct {
	peerID int32
	score  int32
}

func (f *fakeNetwork) RelayInv(inv InvVect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, inv)
}

func (f *fakeNetwork) PushInventory(peer Peer, inv InvVect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, pushedMessage{peer: peer, msg: inv})
}

func (f *fakeNetwork) PushMessage(peer Peer, msg interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, pushedMessage{peer: peer, msg: msg})
}

func (f *fakeNetwork) ForEachNode(fn func(Peer)) {
	f.mu.Lock()
	peers := append([]Peer(nil), f.peers...)
	f.mu.Unlock()
	for _, p := range peers {
		fn(p)
	}
}

func (f *fakeNetwork) Misbehaving(peerID int32, score int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misbehaving = append(f.misbehaving, misbehavingCall{peerID: peerID, score: score})
}

// fakePeer is the minimal Peer implementation tests address messages
// to.
type fakePeer struct {
	id  int32
	ver uint32
}

func (p *fakePeer) ID() int32              { return p.id }
func (p *fakePeer) ProtocolVersion() uint32 { return p.ver }

// fakeCrypto implements Crypto without doing any real cryptography:
// Sign returns a deterministic tag derived from the message and key,
// and Verify checks that tag was produced by the matching public key.
// This is sufficient for exercising the manager's sign/verify call
// sites without pulling ecdsa math into every test.
type fakeCrypto struct{}

func (fakeCrypto) Sign(message []byte, key *btcec.PrivateKey) ([]byte, error) {
	tag := append([]byte{}, message...)
	tag = append(tag, key.PubKey().SerializeCompressed()...)
	return chainhash.HashB(tag), nil
}

func (fakeCrypto) Verify(message []byte, sig []byte, pubKey *btcec.PublicKey) bool {
	tag := append([]byte{}, message...)
	tag = append(tag, pubKey.SerializeCompressed()...)
	want := chainhash.HashB(tag)
	if len(sig) != len(want) {
		return false
	}
	for i := range sig {
		if sig[i] != want[i] {
			return false
		}
	}
	return true
}

// fakeWallet implements Wallet by recording the binding hash and fee
// it was asked to fund, returning a deterministic collateral txid.
type fakeWallet struct {
	mu     sync.Mutex
	calls  []fakeWalletCall
	txHash chainhash.Hash
	err    error
}

type fakeWalletCall struct {
	bindingHash chainhash.Hash
	fee         btcutil.Amount
}

func (w *fakeWallet) CreateFundedOpReturnTx(bindingHash chainhash.Hash, fee btcutil.Amount) (chainhash.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, fakeWalletCall{bindingHash: bindingHash, fee: fee})
	if w.err != nil {
		return chainhash.Hash{}, w.err
	}
	if w.txHash != (chainhash.Hash{}) {
		return w.txHash, nil
	}
	return chainhash.HashH(bindingHash[:]), nil
}

func testPrivateKey(seed byte) *btcec.PrivateKey {
	var buf [32]byte
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	key, _ := btcec.PrivKeyFromBytes(buf[:])
	return key
}

func testManagerParams() *Params {
	cycle := int32(30)
	return &Params{
		CycleLength:               cycle,
		BudgetFeeConfirmations:    6,
		ProposalFee:               50 * btcutil.SatoshiPerBitcoin,
		FinalizationFee:           5 * btcutil.SatoshiPerBitcoin,
		ProposalEstablishmentTime: 48 * time.Hour,
		NetworkMagic:              0xdeadbeef,
		FinalizationWindow:        12,
		ActiveProtocol:            func() uint32 { return 1 },
		TotalBudget:               DefaultTotalBudget(cycle),
	}
}
