// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletadapter implements budget.Wallet on top of btcwallet's
// transaction-authoring libraries: the governance subsystem only ever
// needs one operation from a wallet, building and broadcasting a
// funded OP_RETURN commitment, and txauthor is exactly the piece of
// btcwallet that knows how to assemble, fund, and sign an arbitrary
// output set without pulling in the rest of the wallet's account and
// address-manager machinery.
package walletadapter

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// Broadcaster submits a fully-signed transaction to the network. The
// wallet adapter never holds a peer connection itself.
type Broadcaster interface {
	PublishTransaction(tx *wire.MsgTx) error
}

// Wallet adapts an account's coin selection, change output, and
// signing capability into budget.Wallet.
type Wallet struct {
	relayFeePerKb btcutil.Amount
	inputSource   txauthor.InputSource
	changeSource  txauthor.ChangeSource
	secrets       txauthor.SecretsSource
	broadcaster   Broadcaster
}

// New constructs a Wallet. relayFeePerKb governs the same minimum-fee
// floor txrules.FeeForSerializeSize enforces elsewhere in btcwallet,
// so a collateral transaction is funded exactly the way any other
// wallet-originated spend would be.
func New(relayFeePerKb btcutil.Amount, inputs txauthor.InputSource, change txauthor.ChangeSource, secrets txauthor.SecretsSource, broadcaster Broadcaster) *Wallet {
	if relayFeePerKb < txrules.DefaultRelayFeePerKb {
		relayFeePerKb = txrules.DefaultRelayFeePerKb
	}
	return &Wallet{
		relayFeePerKb: relayFeePerKb,
		inputSource:   inputs,
		changeSource:  change,
		secrets:       secrets,
		broadcaster:   broadcaster,
	}
}

// CreateFundedOpReturnTx implements budget.Wallet.
func (w *Wallet) CreateFundedOpReturnTx(bindingHash chainhash.Hash, fee btcutil.Amount) (chainhash.Hash, error) {
	script, err := bindingScript(bindingHash)
	if err != nil {
		return chainhash.Hash{}, err
	}

	output := wire.NewTxOut(int64(fee), script)

	authored, err := txauthor.NewUnsignedTransaction(
		[]*wire.TxOut{output}, w.relayFeePerKb, w.inputSource, &w.changeSource,
	)
	if err != nil {
		return chainhash.Hash{}, err
	}

	if err := authored.AddAllInputScripts(w.secrets); err != nil {
		return chainhash.Hash{}, err
	}

	if err := checkRelayFee(authored, w.relayFeePerKb); err != nil {
		return chainhash.Hash{}, err
	}

	if err := w.broadcaster.PublishTransaction(authored.Tx); err != nil {
		return chainhash.Hash{}, err
	}

	return authored.Tx.TxHash(), nil
}

// checkRelayFee re-derives a worst-case virtual size for the signed
// collateral transaction, treating every input as the largest
// redeeming script txsizes knows about, and rejects the transaction if
// its actual fee rate would fall below the relay minimum. This is the
// same guard a wallet applies before handing any other transaction to
// the network.
func checkRelayFee(authored *txauthor.AuthoredTx, relayFeePerKb btcutil.Amount) error {
	changeScriptSize := 0
	if authored.ChangeIndex >= 0 {
		changeScriptSize = len(authored.Tx.TxOut[authored.ChangeIndex].PkScript)
	}

	vsize := txsizes.EstimateVirtualSize(
		len(authored.PrevScripts), 0, 0, 0, authored.Tx.TxOut, changeScriptSize,
	)

	minFee := txrules.FeeForSerializeSize(relayFeePerKb, vsize)
	if authored.TotalInput-sumOutputs(authored.Tx.TxOut) < minFee {
		return fmt.Errorf("collateral transaction fee is below the relay minimum of %v", minFee)
	}
	return nil
}

func sumOutputs(outs []*wire.TxOut) btcutil.Amount {
	var total btcutil.Amount
	for _, out := range outs {
		total += btcutil.Amount(out.Value)
	}
	return total
}

// bindingScript builds the unspendable OP_RETURN output that commits
// to a proposal or finalized budget's identity hash, the same shape
// budget.isUnspendableBindingOutput expects to find on the other end.
func bindingScript(bindingHash chainhash.Hash) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(bindingHash[:]).
		Script()
}
