// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"bytes"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// opReturnMarker prefixes the unspendable output's script, the same
// way an OP_RETURN output is distinguished from a spendable one.
const opReturnMarker = 0x6a // OP_RETURN

// CollateralResult is the successful outcome of CheckCollateral: the
// time and height of the block the collateral transaction is mined
// into.
type CollateralResult struct {
	BlockTime   time.Time
	BlockHeight int32
}

// CheckCollateral asserts that txHash exists on the active chain, pays
// the required fee to an unspendable output committing to
// expectedBindingHash, and has accrued the required confirmation
// depth. isFinalization selects between the proposal fee and the
// finalization fee.
//
// Every failure kind is non-fatal: the caller rejects the triggering
// proposal or finalized budget for now, and may retry on a later
// height once the depth requirement has had a chance to be met.
func CheckCollateral(chain ChainIndex, params *Params, txHash chainhash.Hash, expectedBindingHash chainhash.Hash, currentHeight int32, isFinalization bool) (CollateralResult, error) {
	tx, blockHash, confirmations, ok := chain.GetTransactionWithBlock(txHash)
	if !ok {
		return CollateralResult{}, newError(ErrCollateralNotFound, "collateral transaction not found", nil)
	}
	if confirmations == 0 {
		return CollateralResult{}, newError(ErrCollateralUnconfirmed, "collateral transaction is unconfirmed", nil)
	}
	if tx.LockTime != 0 {
		return CollateralResult{}, newError(ErrCollateralMalformed, "collateral transaction has a non-zero lock time", nil)
	}
	if len(tx.TxOut) == 0 {
		return CollateralResult{}, newError(ErrCollateralMalformed, "collateral transaction has no outputs", nil)
	}

	requiredFee := params.ProposalFee
	if isFinalization {
		requiredFee = params.FinalizationFee
	}

	foundBinding := false
	for _, out := range tx.TxOut {
		if isUnspendableBindingOutput(out) {
			if !bindingMatches(out.PkScript, expectedBindingHash) {
				continue
			}
			if btcutil.Amount(out.Value) < requiredFee {
				return CollateralResult{}, newError(ErrCollateralUnderpaid, "binding output pays less than the required fee", nil)
			}
			foundBinding = true
			continue
		}
		if !isNormalPaymentScript(out.PkScript) {
			return CollateralResult{}, newError(ErrCollateralMalformed, "collateral transaction has a non-payment, non-binding output", nil)
		}
	}
	if !foundBinding {
		return CollateralResult{}, newError(ErrCollateralBindingMismatch, "no output commits to the expected binding hash", nil)
	}

	entry, ok := chain.GetBlockIndexByHash(blockHash)
	if !ok || !entry.InActive {
		return CollateralResult{}, newError(ErrCollateralNotActiveChain, "collateral's containing block is not on the active chain", nil)
	}

	// The +1 treats the inclusion block itself as the first
	// confirmation, matching how confirmations is already computed
	// relative to currentHeight by the chain index.
	depth := confirmations + (currentHeight - entry.Height) + 1
	if depth < params.BudgetFeeConfirmations {
		return CollateralResult{}, newError(ErrCollateralInsufficientDepth, "collateral has not reached the required confirmation depth", nil)
	}

	return CollateralResult{BlockTime: entry.Time, BlockHeight: entry.Height}, nil
}

// isUnspendableBindingOutput reports whether out looks like an
// OP_RETURN-pattern output: provably unspendable, carrying 32 bytes of
// pushed data.
func isUnspendableBindingOutput(out *wire.TxOut) bool {
	return len(out.PkScript) >= 1 && out.PkScript[0] == opReturnMarker
}

// bindingMatches reports whether the unspendable output's pushed data
// is exactly expectedBindingHash.
func bindingMatches(script []byte, expectedBindingHash chainhash.Hash) bool {
	data := extractPushData(script)
	return len(data) == chainhash.HashSize && bytes.Equal(data, expectedBindingHash[:])
}

// extractPushData strips the OP_RETURN opcode and a single push-length
// byte, returning the pushed payload. It intentionally understands
// only the single-push pattern collateral outputs use.
func extractPushData(script []byte) []byte {
	if len(script) < 2 {
		return nil
	}
	pushLen := int(script[1])
	if len(script) != 2+pushLen {
		return nil
	}
	return script[2:]
}

// isNormalPaymentScript is a coarse shape check for the non-binding
// outputs a collateral transaction may carry (e.g. change).
func isNormalPaymentScript(script []byte) bool {
	return len(script) > 0 && script[0] != opReturnMarker
}
