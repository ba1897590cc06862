package proxyproto_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/nabbar/l4lb/internal/proxyproto"
)

func TestEncodeTCPIPv4ExactBytes(t *testing.T) {
	src := &net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 12345}
	dst := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 80}

	got := proxyproto.EncodeTCP(src, dst)

	want := []byte{
		0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A,
		0x21, 0x11,
		0x00, 0x0C, // length 12
		192, 168, 1, 1,
		10, 0, 0, 1,
		0x30, 0x39, // 12345
		0x00, 0x50, // 80
	}

	if len(got) != 28 {
		t.Fatalf("expected a 28-byte header, got %d bytes", len(got))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("header mismatch:\n got  % x\n want % x", got, want)
	}
	if got[len(got)-2] != 0x00 || got[len(got)-1] != 0x50 {
		t.Fatalf("expected header to end in 0x00 0x50, got %x %x", got[len(got)-2], got[len(got)-1])
	}
}

func TestRoundTripIPv4(t *testing.T) {
	src := &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 55555}
	dst := &net.TCPAddr{IP: net.ParseIP("198.51.100.2"), Port: 443}

	buf := proxyproto.EncodeTCP(src, dst)
	h, n, err := proxyproto.Decode(buf)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume the whole buffer, consumed %d of %d", n, len(buf))
	}
	if h.Local {
		t.Fatal("expected a PROXY header, got LOCAL")
	}
	if !h.Src.IP.Equal(src.IP) || h.Src.Port != src.Port {
		t.Fatalf("src mismatch: got %v, want %v", h.Src, src)
	}
	if !h.Dst.IP.Equal(dst.IP) || h.Dst.Port != dst.Port {
		t.Fatalf("dst mismatch: got %v, want %v", h.Dst, dst)
	}
}

func TestRoundTripIPv6(t *testing.T) {
	src := &net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 1111}
	dst := &net.TCPAddr{IP: net.ParseIP("2001:db8::2"), Port: 2222}

	buf := proxyproto.EncodeTCP(src, dst)
	h, n, err := proxyproto.Decode(buf)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume the whole buffer, consumed %d of %d", n, len(buf))
	}
	if !h.Src.IP.Equal(src.IP) || h.Src.Port != src.Port {
		t.Fatalf("src mismatch: got %v, want %v", h.Src, src)
	}
	if !h.Dst.IP.Equal(dst.IP) || h.Dst.Port != dst.Port {
		t.Fatalf("dst mismatch: got %v, want %v", h.Dst, dst)
	}
}

func TestMismatchedFamiliesEmitLocalHeader(t *testing.T) {
	src := &net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 1}
	dst := &net.TCPAddr{IP: net.ParseIP("2001:db8::2"), Port: 2}

	buf := proxyproto.EncodeTCP(src, dst)
	if len(buf) != 16 {
		t.Fatalf("expected a 16-byte LOCAL header, got %d bytes", len(buf))
	}

	h, n, err := proxyproto.Decode(buf)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if n != 16 || !h.Local {
		t.Fatalf("expected a 16-byte LOCAL header, got n=%d local=%v", n, h.Local)
	}
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	buf := make([]byte, 16)
	if _, _, err := proxyproto.Decode(buf); err == nil {
		t.Fatal("expected an error for a zeroed buffer with no valid signature")
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, _, err := proxyproto.Decode([]byte{0x0D, 0x0A}); err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
}
