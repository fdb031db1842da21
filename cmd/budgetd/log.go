// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/masternode-network/budgetd/blockntfns"
	"github.com/masternode-network/budgetd/budget"
	"github.com/masternode-network/budgetd/chainindex"
)

var (
	logRotator *rotator.Rotator

	backendLog = btclog.NewBackend(logWriter{})

	log          = backendLog.Logger("BUDG")
	budgetLog    = backendLog.Logger("GOVR")
	chainLog     = backendLog.Logger("CIDX")
	ntfnsLog     = backendLog.Logger("BNTF")
)

// logWriter implements io.Writer and plugs backendLog's output into
// the rotating file the same way btcwallet's own main wires seelog to
// a rolling file: console plus a size-capped, rotated log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// initLogRotator initializes the rolling file logger, creating the log
// directory as needed.
func initLogRotator(logFile string) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		os.Stderr.WriteString("failed to create log directory: " + err.Error() + "\n")
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		os.Stderr.WriteString("failed to create file rotator: " + err.Error() + "\n")
		os.Exit(1)
	}
	logRotator = r
}

// setLogLevels wires every subsystem's logger to the requested level
// and installs each logger via that subsystem's own UseLogger.
func setLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		level = btclog.LevelInfo
	}

	log.SetLevel(level)
	budgetLog.SetLevel(level)
	chainLog.SetLevel(level)
	ntfnsLog.SetLevel(level)

	budget.UseLogger(budgetLog)
	chainindex.UseLogger(chainLog)
	blockntfns.UseLogger(ntfnsLog)
}
