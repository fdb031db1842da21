// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainindex

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// notificationHandlers wires the rescan's filtered-block callback into
// indexBlock: every transaction in every connected block is recorded,
// since a collateral transaction's unspendable OP_RETURN output
// carries no address for the filter to match against up front.
func (idx *Index) notificationHandlers() rpcclient.NotificationHandlers {
	return rpcclient.NotificationHandlers{
		OnFilteredBlockConnected: func(height int32, header *wire.BlockHeader, txns []*btcutil.Tx) {
			block := btcutil.NewBlock(&wire.MsgBlock{
				Header:       *header,
				Transactions: extractMsgTxs(txns),
			})
			block.SetHeight(height)
			idx.indexBlock(block, height)
		},
	}
}

func extractMsgTxs(txns []*btcutil.Tx) []*wire.MsgTx {
	out := make([]*wire.MsgTx, len(txns))
	for i, tx := range txns {
		out[i] = tx.MsgTx()
	}
	return out
}
