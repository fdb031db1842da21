// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainindex adapts a neutrino light client into the
// budget.ChainIndex the governance subsystem uses to resolve
// collateral transactions and confirm the active chain.
package chainindex

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino"
	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/masternode-network/budgetd/budget"
)

// blockCacheSize bounds the header-lookup LRU: a node reconsidering a
// proposal's collateral only ever touches blocks near the current
// confirmation frontier, so a modest cache absorbs nearly every
// repeat lookup that collateral and double-payment checks make.
const blockCacheSize = 5000

// Index wraps a *neutrino.ChainService, keeping a small cache of
// resolved block headers and a live index of collateral transactions
// observed by the watch-list rescan Start installs.
type Index struct {
	cs *neutrino.ChainService

	headerCache *lru.Cache[chainhash.Hash, budget.BlockIndexEntry]

	mu      sync.RWMutex
	txIndex map[chainhash.Hash]txLocation
}

type txLocation struct {
	tx      *wire.MsgTx
	block   chainhash.Hash
	height  int32
}

// New wraps an already-running chain service. The caller is
// responsible for calling Start, whose rescan is what populates
// txIndex; it registers no watch scripts, since governance
// transactions are found by their OP_RETURN pattern rather than by
// address.
func New(cs *neutrino.ChainService) (*Index, error) {
	cache, err := lru.NewCache[chainhash.Hash, budget.BlockIndexEntry](blockCacheSize)
	if err != nil {
		return nil, err
	}
	return &Index{
		cs:          cs,
		headerCache: cache,
		txIndex:     make(map[chainhash.Hash]txLocation),
	}, nil
}

// Start launches the background rescan that feeds the transaction
// index. It blocks until the rescan's initial historical pass, if
// any, has been queued; the rescan itself continues to run in the
// background until quit is closed.
func (idx *Index) Start(quit <-chan struct{}) error {
	_, bestHeight, err := idx.cs.BlockHeaders.ChainTip()
	if err != nil {
		return err
	}

	rescan := neutrino.NewRescan(
		&neutrino.RescanChainSource{ChainService: idx.cs},
		neutrino.StartBlock(&neutrino.BlockStamp{Height: int32(bestHeight)}),
		neutrino.NotificationHandlers(idx.notificationHandlers()),
		neutrino.QuitChan(quit),
	)

	errChan := rescan.Start()
	go func() {
		select {
		case err := <-errChan:
			if err != nil {
				log.Errorf("governance rescan exited: %v", err)
			}
		case <-quit:
		}
	}()
	return nil
}

func (idx *Index) indexBlock(block *btcutil.Block, height int32) {
	hash := *block.Hash()
	idx.mu.Lock()
	for _, tx := range block.Transactions() {
		txHash := *tx.Hash()
		idx.txIndex[txHash] = txLocation{tx: tx.MsgTx(), block: hash, height: height}
	}
	idx.mu.Unlock()
}

// GetTransactionWithBlock implements budget.ChainIndex.
func (idx *Index) GetTransactionWithBlock(txHash chainhash.Hash) (*wire.MsgTx, chainhash.Hash, int32, bool) {
	idx.mu.RLock()
	loc, ok := idx.txIndex[txHash]
	idx.mu.RUnlock()
	if !ok {
		return nil, chainhash.Hash{}, 0, false
	}
	confirmations := idx.BestHeight() - loc.height + 1
	if confirmations < 0 {
		confirmations = 0
	}
	return loc.tx, loc.block, confirmations, true
}

// GetBlockIndexByHash implements budget.ChainIndex.
func (idx *Index) GetBlockIndexByHash(blockHash chainhash.Hash) (budget.BlockIndexEntry, bool) {
	if entry, ok := idx.headerCache.Get(blockHash); ok {
		return entry, true
	}

	header, height, err := idx.cs.BlockHeaders.FetchHeaderByHash(&blockHash)
	if err != nil {
		return budget.BlockIndexEntry{}, false
	}

	tipHash, tipHeight, err := idx.cs.BlockHeaders.ChainTip()
	inActive := err == nil && idx.isOnActiveChain(blockHash, height, tipHash, tipHeight)

	entry := budget.BlockIndexEntry{
		Hash:     blockHash,
		Height:   int32(height),
		Time:     header.Timestamp,
		InActive: inActive,
	}
	idx.headerCache.Put(blockHash, entry)
	return entry, true
}

// isOnActiveChain looks up the best-chain hash at height and checks it
// matches blockHash, which is sufficient for a
// light client that stores exactly one header per height on its best
// chain.
func (idx *Index) isOnActiveChain(blockHash chainhash.Hash, height uint32, tipHash chainhash.Hash, tipHeight uint32) bool {
	if height > tipHeight {
		return false
	}
	atHeight, err := idx.cs.GetBlockHash(int64(height))
	if err != nil {
		return false
	}
	return *atHeight == blockHash
}

// BestHeight implements budget.ChainIndex.
func (idx *Index) BestHeight() int32 {
	_, height, err := idx.cs.BlockHeaders.ChainTip()
	if err != nil {
		return 0
	}
	return int32(height)
}

// BlockValue implements budget.ChainIndex using the historical subsidy
// schedule budget.SubsidyAt records; a host with richer emission logic
// of its own should supply its own ChainIndex rather than this one.
func (idx *Index) BlockValue(height int32) btcutil.Amount {
	return budget.SubsidyAt(height)
}
