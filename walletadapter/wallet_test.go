// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletadapter

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/stretchr/testify/require"
)

func TestNewEnforcesRelayFeeFloor(t *testing.T) {
	w := New(0, nil, txauthor.ChangeSource{}, nil, nil)
	require.Equal(t, txrules.DefaultRelayFeePerKb, w.relayFeePerKb)

	higher := 10 * txrules.DefaultRelayFeePerKb
	w2 := New(higher, nil, txauthor.ChangeSource{}, nil, nil)
	require.Equal(t, higher, w2.relayFeePerKb)
}

func TestBindingScriptIsUnspendableAndCommitsToHash(t *testing.T) {
	hash := chainhash.Hash{0x01, 0x02, 0x03}
	script, err := bindingScript(hash)
	require.NoError(t, err)

	class := txscript.GetScriptClass(script)
	require.Equal(t, txscript.NullDataTy, class)

	pushes, err := txscript.PushedData(script)
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	require.Equal(t, hash[:], pushes[0])
}

func TestSumOutputs(t *testing.T) {
	outs := []*wire.TxOut{
		wire.NewTxOut(100, nil),
		wire.NewTxOut(250, nil),
	}
	require.Equal(t, btcutil.Amount(350), sumOutputs(outs))
	require.Equal(t, btcutil.Amount(0), sumOutputs(nil))
}

func TestCheckRelayFeeRejectsBelowMinimum(t *testing.T) {
	tx := wire.NewMsgTx(1)
	tx.AddTxOut(wire.NewTxOut(100_000, []byte{0x6a}))

	authored := &txauthor.AuthoredTx{
		Tx:          tx,
		PrevScripts: [][]byte{{0x76, 0xa9}},
		TotalInput:  100_000, // no room left for any fee at all
		ChangeIndex: -1,
	}

	err := checkRelayFee(authored, txrules.DefaultRelayFeePerKb)
	require.Error(t, err)
}

func TestCheckRelayFeeAcceptsSufficientFee(t *testing.T) {
	tx := wire.NewMsgTx(1)
	tx.AddTxOut(wire.NewTxOut(100_000, []byte{0x6a}))

	authored := &txauthor.AuthoredTx{
		Tx:          tx,
		PrevScripts: [][]byte{{0x76, 0xa9}},
		TotalInput:  200_000, // generous input leaves plenty for fees
		ChangeIndex: -1,
	}

	err := checkRelayFee(authored, txrules.DefaultRelayFeePerKb)
	require.NoError(t, err)
}
