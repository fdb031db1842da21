// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "budgetd.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "budgetd.log"
	defaultMode           = "disabled"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("budgetd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = defaultHomeDir
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config holds every command-line and configuration-file option
// budgetd accepts, following the same short/long/description tagging
// go-flags parses everywhere else in the pack.
type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store governance snapshots"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	TestNet3    bool   `long:"testnet" description:"Use the test network"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network"`

	NeutrinoConnect []string `long:"connect" description:"Full node address(es) to connect to for compact-filter service"`
	ZMQBlockHost    string   `long:"zmqpubrawblock" description:"Address of a bitcoind-compatible rawblock ZMQ publisher"`

	Mode           string `long:"budgetmode" description:"Governance submission mode: suggest, auto, or disabled"`
	VotingKeyWIF   string `long:"votingkey" description:"WIF-encoded masternode private key used to sign this node's own governance votes"`
	VotingOutpoint string `long:"votingoutpoint" description:"This masternode's collateral outpoint, as hash:index"`

	MetricsListen string `long:"metricslisten" description:"Address to serve Prometheus metrics on; empty disables metrics"`
}

// loadConfig parses command-line flags, applying defaults before any
// subsystem is constructed.
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Mode:       defaultMode,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	if cfg.TestNet3 && cfg.SimNet {
		return nil, nil, fmt.Errorf("the testnet and simnet flags can not be used together")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &cfg, remainingArgs, nil
}
