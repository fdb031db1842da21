// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/masternode-network/budgetd/budget"
	"github.com/masternode-network/budgetd/netparams"
	"github.com/stretchr/testify/require"
)

func TestSelectNetParams(t *testing.T) {
	// netparams.Params embeds function-valued fields, so compare by a
	// stable identifying field rather than deep equality.
	require.Equal(t, netparams.MainNetParams.Budget.NetworkMagic, selectNetParams(&config{}).Budget.NetworkMagic)
	require.Equal(t, netparams.TestNet3Params.Budget.NetworkMagic, selectNetParams(&config{TestNet3: true}).Budget.NetworkMagic)
	require.Equal(t, netparams.SimNetParams.Budget.NetworkMagic, selectNetParams(&config{SimNet: true}).Budget.NetworkMagic)
}

func TestParseOutpoint(t *testing.T) {
	op, err := parseOutpoint("000000000000000000000000000000000000000000000000000000000000002a:3")
	require.NoError(t, err)
	require.EqualValues(t, 3, op.Index)

	_, err = parseOutpoint("missing-colon")
	require.Error(t, err)

	_, err = parseOutpoint("not-a-hash:3")
	require.Error(t, err)

	_, err = parseOutpoint("000000000000000000000000000000000000000000000000000000000000002a:not-a-number")
	require.Error(t, err)
}

func TestWireVotingKeyNoOpWithoutConfig(t *testing.T) {
	m := budget.New(&budget.Params{CycleLength: 1}, nil, nil, nil, nil, nil, budget.ModeDisabled)
	require.NoError(t, wireVotingKey(m, &config{}))
}
