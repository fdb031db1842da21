// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams groups, per network, the chaincfg.Params a
// standard btcd-family node needs alongside the budget.Params the
// governance subsystem needs: collateral fees, the superblock cycle
// length, and the network magic a snapshot file is checked against.
package netparams

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/masternode-network/budgetd/budget"
)

// Params groups a chain's standard parameters with its governance
// parameters, the way the original netparams package grouped
// chaincfg.Params with RPC port numbers.
type Params struct {
	*chaincfg.Params
	Budget *budget.Params
}

// activeProtocolVersion is shared across networks: it is the minimum
// peer protocol version this build requires for governance vote
// exchange.
const activeProtocolVersion = 70017

func activeProtocol() uint32 { return activeProtocolVersion }

// MainNetParams is the governance and chain parameter set for the
// production network.
var MainNetParams = Params{
	Params: &chaincfg.MainNetParams,
	Budget: &budget.Params{
		CycleLength:               43200,
		BudgetFeeConfirmations:    6,
		ProposalFee:               50 * btcutil.SatoshiPerBitcoin,
		FinalizationFee:           5 * btcutil.SatoshiPerBitcoin,
		ProposalEstablishmentTime: 24 * time.Hour,
		NetworkMagic:              0xd9b4bef9,
		FinalizationWindow:        600,
		ActiveProtocol:            activeProtocol,
		TotalBudget:               budget.DefaultTotalBudget(43200),
		EnforceSyncRequestLimit:   true,
	},
}

// TestNet3Params is the governance and chain parameter set for the
// public test network: a shorter cycle and shallower confirmation
// depth so proposals and finalized budgets exercise their full
// lifecycle in minutes rather than days.
var TestNet3Params = Params{
	Params: &chaincfg.TestNet3Params,
	Budget: &budget.Params{
		CycleLength:               144,
		BudgetFeeConfirmations:    1,
		ProposalFee:               50 * btcutil.SatoshiPerBitcoin,
		FinalizationFee:           5 * btcutil.SatoshiPerBitcoin,
		ProposalEstablishmentTime: 5 * time.Minute,
		NetworkMagic:              0x0709110b,
		FinalizationWindow:        10,
		ActiveProtocol:            activeProtocol,
		TotalBudget:               budget.DefaultTotalBudget(144),
		EnforceSyncRequestLimit:   false,
	},
}

// SimNetParams is the governance and chain parameter set for the
// simulation test network used by integration tests: every timing
// window is collapsed to a handful of blocks.
var SimNetParams = Params{
	Params: &chaincfg.SimNetParams,
	Budget: &budget.Params{
		CycleLength:               20,
		BudgetFeeConfirmations:    1,
		ProposalFee:               50 * btcutil.SatoshiPerBitcoin,
		FinalizationFee:           5 * btcutil.SatoshiPerBitcoin,
		ProposalEstablishmentTime: 0,
		NetworkMagic:              0x12141c16,
		FinalizationWindow:        5,
		ActiveProtocol:            activeProtocol,
		TotalBudget:               budget.DefaultTotalBudget(20),
		EnforceSyncRequestLimit:   false,
	},
}
