package gossip

import "testing"

func TestBroadcastMessageRoundTrip(t *testing.T) {
	m := BroadcastMessage{NodeID: 0xdeadbeefcafef00d, Key: "rule1:client_upload", Usage: 123456}

	buf := m.Encode()
	got, err := DecodeBroadcastMessage(buf)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeBroadcastMessage([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
}

func TestInvalidatingBroadcastSupersedesSameKey(t *testing.T) {
	older := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 1, Key: "k", Usage: 1}}
	older.encoded = older.msg.Encode()

	newer := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 1, Key: "k", Usage: 2}}
	newer.encoded = newer.msg.Encode()

	if !newer.Invalidates(older) {
		t.Fatal("expected a newer broadcast with the same (node_id, key) to invalidate the older one")
	}
}

func TestInvalidatingBroadcastDoesNotSupersedeDifferentKey(t *testing.T) {
	a := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 1, Key: "a", Usage: 1}}
	b := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 1, Key: "b", Usage: 1}}

	if a.Invalidates(b) || b.Invalidates(a) {
		t.Fatal("expected broadcasts with different keys not to invalidate each other")
	}
}

func TestInvalidatingBroadcastDoesNotSupersedeDifferentNode(t *testing.T) {
	a := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 1, Key: "k", Usage: 1}}
	b := &invalidatingBroadcast{msg: BroadcastMessage{NodeID: 2, Key: "k", Usage: 1}}

	if a.Invalidates(b) || b.Invalidates(a) {
		t.Fatal("expected broadcasts from different nodes not to invalidate each other")
	}
}
