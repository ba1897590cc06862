/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package gossip implements the optional cluster plane: a SWIM membership
// node (via memberlist) plus an invalidation-keyed broadcast queue for
// sharing per-node usage counters.
package gossip

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/memberlist"

	"github.com/nabbar/l4lb/internal/logging"
)

// Config mirrors the cluster plane's external YAML shape:
// cluster: { enabled, bind_addr, peers }.
type Config struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	BindAddr string   `mapstructure:"bind_addr" yaml:"bind_addr"`
	Peers    []string `mapstructure:"peers" yaml:"peers"`
}

// Node owns a memberlist instance and the broadcast queue feeding it. One
// Node exists per process when the cluster plane is enabled.
type Node struct {
	id uint64

	mu  sync.RWMutex
	ml  *memberlist.Memberlist
	tq  *memberlist.TransmitLimitedQueue
	cfg Config
	log logging.Logger

	recv chan BroadcastMessage
}

// NewNode generates a fresh random 64-bit identity and prepares (but does
// not yet join) a Node.
func NewNode(cfg Config, log logging.Logger) (*Node, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	return &Node{
		id:   id,
		cfg:  cfg,
		log:  log,
		recv: make(chan BroadcastMessage, 256),
	}, nil
}

func randomID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Renew generates a new random node id (address unchanged), used to recover
// identity after a suspected network partition.
func (n *Node) Renew() error {
	id, err := randomID()
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.id = id
	n.mu.Unlock()
	return nil
}

// ID returns the node's current 64-bit identity.
func (n *Node) ID() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// Join starts the memberlist SWIM engine, binds to cfg.BindAddr, and
// contacts cfg.Peers as seeds.
func (n *Node) Join() error {
	mlcfg := memberlist.DefaultLANConfig()
	mlcfg.Name = fmt.Sprintf("l4lb-%d", n.ID())
	mlcfg.Logger = logging.NewHCLog(n.log).StandardLogger(&hclog.StandardLoggerOptions{})

	if n.cfg.BindAddr != "" {
		host, port, err := splitHostPort(n.cfg.BindAddr)
		if err != nil {
			return err
		}
		mlcfg.BindAddr = host
		mlcfg.BindPort = port
		mlcfg.AdvertiseAddr = host
		mlcfg.AdvertisePort = port
	}

	mlcfg.Delegate = &delegate{node: n}

	ml, err := memberlist.Create(mlcfg)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.ml = ml
	n.tq = &memberlist.TransmitLimitedQueue{
		NumNodes:       func() int { return ml.NumMembers() },
		RetransmitMult: 3,
	}
	n.mu.Unlock()

	if len(n.cfg.Peers) > 0 {
		if _, err := ml.Join(n.cfg.Peers); err != nil {
			n.log.Warningf("gossip: failed to join some seed peers: %v", err)
		}
	}

	return nil
}

// Leave gracefully leaves the cluster and shuts the memberlist engine down.
func (n *Node) Leave() error {
	n.mu.RLock()
	ml := n.ml
	n.mu.RUnlock()
	if ml == nil {
		return nil
	}
	if err := ml.Leave(0); err != nil {
		return err
	}
	return ml.Shutdown()
}

// Broadcast enqueues a usage update for cluster-wide delivery. A later call
// with the same key supersedes an earlier one still sitting in the queue.
func (n *Node) Broadcast(key string, usage uint32) {
	n.mu.RLock()
	tq := n.tq
	id := n.id
	n.mu.RUnlock()
	if tq == nil {
		return
	}

	msg := BroadcastMessage{NodeID: id, Key: key, Usage: usage}
	tq.QueueBroadcast(&invalidatingBroadcast{msg: msg, encoded: msg.Encode()})
}

// Received returns the channel onto which decoded broadcasts (including
// ones from remote nodes) are pushed for consumers, e.g. a usage aggregator.
func (n *Node) Received() <-chan BroadcastMessage {
	return n.recv
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
