// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockntfns

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/masternode-network/budgetd/budget"
)

// StallTimeout is how long a Driver waits without a block connected
// notification before logging that its notification source looks
// stuck. A masternode running in suggest mode silently stops voting
// and submitting if its ZMQ feed dies, so this is the only signal an
// operator gets short of watching metrics.
const StallTimeout = 5 * time.Minute

// HeightResolver resolves a connected block to its height, the one
// piece of information a raw ZMQ rawblock payload does not itself
// carry.
type HeightResolver func(block *wire.MsgBlock) (int32, bool)

// Driver turns connected-block notifications into budget.Manager.
// NewBlock calls, tracking the height of the most recent superblock
// so CheckAndRemove's eviction window has the right reference point.
type Driver struct {
	manager      *budget.Manager
	cycleLength  int32
	heightOf     HeightResolver
	stallTicker  ticker.Ticker

	mu                   sync.Mutex
	lastSuperblockHeight int32

	pastBudgetStage func() bool
	fullySynced     func() bool
	peers           func() []budget.Peer
}

// New constructs a Driver. pastBudgetStage, fullySynced, and peers are
// thin accessors into host state the governance subsystem does not
// itself track (deployment-height gating, initial-block-download
// status, and the live connection set).
func New(manager *budget.Manager, cycleLength int32, heightOf HeightResolver, pastBudgetStage, fullySynced func() bool, peers func() []budget.Peer) *Driver {
	return &Driver{
		manager:         manager,
		cycleLength:     cycleLength,
		heightOf:        heightOf,
		stallTicker:     ticker.New(StallTimeout),
		pastBudgetStage: pastBudgetStage,
		fullySynced:     fullySynced,
		peers:           peers,
	}
}

// Run watches for block notifications going quiet and logs a warning
// each time StallTimeout elapses without one, until quit is closed.
func (d *Driver) Run(quit <-chan struct{}) {
	d.stallTicker.Resume()
	defer d.stallTicker.Stop()

	for {
		select {
		case <-d.stallTicker.Ticks():
			log.Warnf("no block connected notification in the last %s", StallTimeout)
		case <-quit:
			return
		}
	}
}

// OnBlockConnected is a Handler suitable for passing to Dial.
func (d *Driver) OnBlockConnected(block *wire.MsgBlock) {
	d.stallTicker.Pause()
	d.stallTicker.Resume()

	height, ok := d.heightOf(block)
	if !ok {
		log.Warnf("dropping governance maintenance tick: unresolvable block height")
		return
	}

	if mod32(height, d.cycleLength) == 0 {
		d.mu.Lock()
		d.lastSuperblockHeight = height
		d.mu.Unlock()
	}

	d.mu.Lock()
	lastSuperblock := d.lastSuperblockHeight
	d.mu.Unlock()

	if err := d.manager.NewBlock(height, lastSuperblock, d.pastBudgetStage(), d.fullySynced(), d.peers()); err != nil {
		log.Errorf("governance maintenance failed at height %d: %v", height, err)
	}
}

func mod32(a, m int32) int32 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
