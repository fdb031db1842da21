// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/lightninglabs/neutrino"
	"github.com/masternode-network/budgetd/blockntfns"
	"github.com/masternode-network/budgetd/budget"
	"github.com/masternode-network/budgetd/chainindex"
	"github.com/masternode-network/budgetd/netparams"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(cfg.DebugLevel)

	activeParams := selectNetParams(cfg)

	neutrinoDB, err := walletdb.Create(
		"bdb", filepath.Join(cfg.DataDir, "neutrino.db"), true, 60*time.Second,
	)
	if err != nil {
		return fmt.Errorf("failed to open neutrino database: %w", err)
	}
	defer neutrinoDB.Close()

	cs, err := neutrino.NewChainService(neutrino.Config{
		DataDir:      cfg.DataDir,
		Database:     neutrinoDB,
		ChainParams:  *activeParams.Params,
		ConnectPeers: cfg.NeutrinoConnect,
	})
	if err != nil {
		return fmt.Errorf("failed to start chain service: %w", err)
	}
	if err := cs.Start(); err != nil {
		return fmt.Errorf("failed to start chain service: %w", err)
	}
	defer cs.Stop()

	chain, err := chainindex.New(cs)
	if err != nil {
		return fmt.Errorf("failed to build chain index: %w", err)
	}

	quit := make(chan struct{})
	defer close(quit)
	if err := chain.Start(quit); err != nil {
		return fmt.Errorf("failed to start chain index: %w", err)
	}

	mode := budget.BudgetMode(cfg.Mode)
	manager := budget.New(
		activeParams.Budget,
		chain,
		noopWallet{},
		emptyMasternodeDirectory{},
		loggingNetwork{},
		ecdsaCrypto{},
		mode,
	)

	if err := wireVotingKey(manager, cfg); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		manager.UseMetrics(reg)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Infof("serving metrics on %s", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, nil); err != nil {
				log.Errorf("metrics server exited: %v", err)
			}
		}()
	}

	driver := blockntfns.New(
		manager,
		activeParams.Budget.CycleLength,
		func(block *wire.MsgBlock) (int32, bool) {
			entry, ok := chain.GetBlockIndexByHash(block.BlockHash())
			return entry.Height, ok
		},
		func() bool { return true },
		func() bool { return true },
		func() []budget.Peer { return nil },
	)

	if cfg.ZMQBlockHost != "" {
		listener, err := blockntfns.Dial(cfg.ZMQBlockHost, driver.OnBlockConnected)
		if err != nil {
			return fmt.Errorf("failed to subscribe to block notifications: %w", err)
		}
		defer listener.Close()

		go driver.Run(quit)
	}

	log.Infof("budgetd started, mode=%s", mode)
	select {}
}

func selectNetParams(cfg *config) netparams.Params {
	switch {
	case cfg.TestNet3:
		return netparams.TestNet3Params
	case cfg.SimNet:
		return netparams.SimNetParams
	default:
		return netparams.MainNetParams
	}
}

// wireVotingKey decodes the configured masternode identity, if any,
// arming the manager to cast and sign this node's own votes.
func wireVotingKey(manager *budget.Manager, cfg *config) error {
	if cfg.VotingKeyWIF == "" {
		return nil
	}

	wif, err := btcutil.DecodeWIF(cfg.VotingKeyWIF)
	if err != nil {
		return fmt.Errorf("invalid voting key: %w", err)
	}

	outpoint, err := parseOutpoint(cfg.VotingOutpoint)
	if err != nil {
		return fmt.Errorf("invalid voting outpoint: %w", err)
	}

	manager.UseVotingKey(outpoint, wif.PrivKey)
	return nil
}

func parseOutpoint(s string) (wire.OutPoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return wire.OutPoint{}, fmt.Errorf("expected hash:index, got %q", s)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return wire.OutPoint{}, err
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}
