// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ecdsaCrypto implements budget.Crypto over btcec's ECDSA primitives,
// the same signature scheme masternode identity keys use elsewhere in
// the pack.
type ecdsaCrypto struct{}

func (ecdsaCrypto) Sign(message []byte, key *btcec.PrivateKey) ([]byte, error) {
	hash := chainhash.HashB(message)
	sig := ecdsa.Sign(key, hash)
	return sig.Serialize(), nil
}

func (ecdsaCrypto) Verify(message []byte, sig []byte, pubKey *btcec.PublicKey) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	hash := chainhash.HashB(message)
	return parsed.Verify(hash, pubKey)
}
