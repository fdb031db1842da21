// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockntfns drives budget.Manager.NewBlock from a bitcoind
// ZMQ rawblock feed, the same transport the rest of the pack's
// lightweight nodes use instead of polling getblockcount.
package blockntfns

import (
	"bytes"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/gozmq"
)

const (
	rawBlockTopic = "rawblock"
	bufferSize    = 1000
	pollTimeout   = 20 * time.Millisecond
)

// Handler receives a fully-decoded connected block.
type Handler func(block *wire.MsgBlock)

// Listener subscribes to a bitcoind-compatible ZMQ rawblock publisher
// and decodes each notification into a wire.MsgBlock for Handler.
type Listener struct {
	conn    *gozmq.Conn
	handler Handler
	quit    chan struct{}
}

// Dial connects to zmqAddr and begins delivering decoded blocks to
// handler on a background goroutine. Close stops delivery.
func Dial(zmqAddr string, handler Handler) (*Listener, error) {
	conn, err := gozmq.Subscribe(zmqAddr, []string{rawBlockTopic}, bufferSize, pollTimeout)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		conn:    conn,
		handler: handler,
		quit:    make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func (l *Listener) run() {
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		msg, err := l.conn.ReadMessage()
		if err != nil {
			log.Errorf("zmq read failed: %v", err)
			continue
		}
		if len(msg) < 2 || string(msg[0]) != rawBlockTopic {
			continue
		}

		var block wire.MsgBlock
		if err := block.Deserialize(bytes.NewReader(msg[1])); err != nil {
			log.Errorf("failed to decode zmq rawblock payload: %v", err)
			continue
		}
		l.handler(&block)
	}
}

// Close terminates the subscription.
func (l *Listener) Close() error {
	close(l.quit)
	return l.conn.Close()
}
