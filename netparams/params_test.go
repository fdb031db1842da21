// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetworkParamSetsAreInternallyConsistent(t *testing.T) {
	for name, p := range map[string]Params{
		"mainnet": MainNetParams,
		"testnet": TestNet3Params,
		"simnet":  SimNetParams,
	} {
		t.Run(name, func(t *testing.T) {
			require.NotNil(t, p.Params)
			require.NotNil(t, p.Budget)
			require.Positive(t, p.Budget.CycleLength)
			require.Positive(t, p.Budget.BudgetFeeConfirmations)
			require.Positive(t, p.Budget.ProposalFee)
			require.Positive(t, p.Budget.FinalizationFee)
			require.NotNil(t, p.Budget.ActiveProtocol)
			require.Equal(t, uint32(activeProtocolVersion), p.Budget.ActiveProtocol())
			require.NotNil(t, p.Budget.TotalBudget)
			require.Positive(t, p.Budget.TotalBudget(p.Budget.CycleLength))
		})
	}
}

func TestNetworkMagicsAreDistinct(t *testing.T) {
	magics := map[uint32]bool{
		MainNetParams.Budget.NetworkMagic: true,
		TestNet3Params.Budget.NetworkMagic: true,
		SimNetParams.Budget.NetworkMagic:   true,
	}
	require.Len(t, magics, 3)
}

func TestSimNetAllowsImmediateEstablishment(t *testing.T) {
	require.Zero(t, SimNetParams.Budget.ProposalEstablishmentTime)
}
