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

package gossip

import (
	"encoding/binary"
	"errors"

	"github.com/hashicorp/memberlist"
)

// BroadcastMessage is the application payload gossiped across the cluster:
// { u64 node_id, length-prefixed UTF-8 key, u32 usage }.
type BroadcastMessage struct {
	NodeID uint64
	Key    string
	Usage  uint32
}

var errShortBroadcast = errors.New("gossip: broadcast payload too short")

// Encode serializes m to its deterministic binary wire form.
func (m BroadcastMessage) Encode() []byte {
	keyBytes := []byte(m.Key)
	buf := make([]byte, 8+2+len(keyBytes)+4)

	binary.BigEndian.PutUint64(buf[0:8], m.NodeID)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(keyBytes)))
	copy(buf[10:10+len(keyBytes)], keyBytes)
	binary.BigEndian.PutUint32(buf[10+len(keyBytes):], m.Usage)

	return buf
}

// DecodeBroadcastMessage parses the wire form produced by Encode.
func DecodeBroadcastMessage(buf []byte) (BroadcastMessage, error) {
	if len(buf) < 10 {
		return BroadcastMessage{}, errShortBroadcast
	}
	nodeID := binary.BigEndian.Uint64(buf[0:8])
	keyLen := int(binary.BigEndian.Uint16(buf[8:10]))
	if len(buf) < 10+keyLen+4 {
		return BroadcastMessage{}, errShortBroadcast
	}
	key := string(buf[10 : 10+keyLen])
	usage := binary.BigEndian.Uint32(buf[10+keyLen:])

	return BroadcastMessage{NodeID: nodeID, Key: key, Usage: usage}, nil
}

// invalidationKey identifies a broadcast for supersession: a later
// broadcast with the same (node_id, key) replaces an earlier one still
// sitting in the transmit queue.
func (m BroadcastMessage) invalidationKey() string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.NodeID)
	return string(buf[:]) + m.Key
}

// invalidatingBroadcast implements memberlist.Broadcast with (node_id,key)
// based invalidation.
type invalidatingBroadcast struct {
	msg     BroadcastMessage
	encoded []byte
}

func (b *invalidatingBroadcast) Invalidates(other memberlist.Broadcast) bool {
	o, ok := other.(*invalidatingBroadcast)
	if !ok {
		return false
	}
	return o.msg.invalidationKey() == b.msg.invalidationKey()
}

func (b *invalidatingBroadcast) Message() []byte {
	return b.encoded
}

func (b *invalidatingBroadcast) Finished() {}

// delegate implements memberlist.Delegate, routing received broadcasts to
// the owning Node's channel and feeding the transmit queue outgoing ones.
type delegate struct {
	node *Node
}

func (d *delegate) NodeMeta(limit int) []byte { return nil }

func (d *delegate) NotifyMsg(buf []byte) {
	msg, err := DecodeBroadcastMessage(buf)
	if err != nil {
		return
	}
	select {
	case d.node.recv <- msg:
	default:
		// Receiver is falling behind; drop rather than block the gossip goroutine.
	}
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	d.node.mu.RLock()
	tq := d.node.tq
	d.node.mu.RUnlock()
	if tq == nil {
		return nil
	}
	return tq.GetBroadcasts(overhead, limit)
}

func (d *delegate) LocalState(join bool) []byte { return nil }

func (d *delegate) MergeRemoteState(buf []byte, join bool) {}
