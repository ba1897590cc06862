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

// Package proxyproto encodes and decodes PROXY protocol v2 headers, the
// binary preamble that conveys a client's original address to a backend
// that otherwise only sees the proxy's own source address.
package proxyproto

import (
	"encoding/binary"
	"errors"
	"net"
)

// Signature is the fixed 12-byte magic that opens every v2 header.
var Signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	verCmdProxy = 0x21 // version 2, command PROXY
	verCmdLocal = 0x20 // version 2, command LOCAL

	famProtoTCP4 = 0x11 // AF_INET, STREAM
	famProtoTCP6 = 0x21 // AF_INET6, STREAM
	famUnspec    = 0x00
)

var errUnsupportedFamily = errors.New("proxyproto: address family is neither IPv4 nor IPv6")
var errShortHeader = errors.New("proxyproto: header shorter than its declared length")
var errBadSignature = errors.New("proxyproto: signature mismatch")

// EncodeTCP builds a v2 PROXY header for a TCP connection from src to dst.
// If either address is not an IPv4 or IPv6 literal, or if the two addresses
// are of mismatched families, a 16-byte LOCAL header is emitted instead —
// the receiver is told to use the proxy's own connection info.
func EncodeTCP(src, dst *net.TCPAddr) []byte {
	srcIP4, srcOK4 := to4(src)
	dstIP4, dstOK4 := to4(dst)
	if srcOK4 && dstOK4 {
		return encode(famProtoTCP4, func(buf []byte) []byte {
			buf = append(buf, srcIP4...)
			buf = append(buf, dstIP4...)
			buf = appendPort(buf, src.Port)
			buf = appendPort(buf, dst.Port)
			return buf
		})
	}

	srcIP6, srcOK6 := to16(src)
	dstIP6, dstOK6 := to16(dst)
	if srcOK6 && dstOK6 {
		return encode(famProtoTCP6, func(buf []byte) []byte {
			buf = append(buf, srcIP6...)
			buf = append(buf, dstIP6...)
			buf = appendPort(buf, src.Port)
			buf = appendPort(buf, dst.Port)
			return buf
		})
	}

	return localHeader()
}

func to4(a *net.TCPAddr) (net.IP, bool) {
	if a == nil {
		return nil, false
	}
	v4 := a.IP.To4()
	if v4 == nil {
		return nil, false
	}
	return v4, true
}

func to16(a *net.TCPAddr) (net.IP, bool) {
	if a == nil {
		return nil, false
	}
	if a.IP.To4() != nil {
		return nil, false
	}
	v6 := a.IP.To16()
	if v6 == nil {
		return nil, false
	}
	return v6, true
}

func appendPort(buf []byte, port int) []byte {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], uint16(port))
	return append(buf, p[:]...)
}

func encode(famProto byte, addrBlock func([]byte) []byte) []byte {
	body := addrBlock(make([]byte, 0, 36))

	out := make([]byte, 0, 16+len(body))
	out = append(out, Signature[:]...)
	out = append(out, verCmdProxy, famProto)
	out = appendPort(out, len(body)) // length field reuses the u16 big-endian writer
	out = append(out, body...)
	return out
}

// localHeader builds the 16-byte LOCAL header emitted when families
// mismatch or an address is not a recognizable TCP literal.
func localHeader() []byte {
	out := make([]byte, 0, 16)
	out = append(out, Signature[:]...)
	out = append(out, verCmdLocal, famUnspec)
	out = appendPort(out, 0)
	return out
}

// Header is a decoded PROXY v2 header.
type Header struct {
	Local bool
	Src   *net.TCPAddr
	Dst   *net.TCPAddr
}

// Decode parses a v2 header from the front of buf, returning the header and
// the number of bytes it consumed.
func Decode(buf []byte) (*Header, int, error) {
	const fixedLen = 16
	if len(buf) < fixedLen {
		return nil, 0, errShortHeader
	}
	for i := 0; i < 12; i++ {
		if buf[i] != Signature[i] {
			return nil, 0, errBadSignature
		}
	}

	verCmd := buf[12]
	famProto := buf[13]
	length := int(binary.BigEndian.Uint16(buf[14:16]))
	total := fixedLen + length
	if len(buf) < total {
		return nil, 0, errShortHeader
	}

	if verCmd == verCmdLocal {
		return &Header{Local: true}, total, nil
	}

	body := buf[fixedLen:total]
	switch famProto {
	case famProtoTCP4:
		if len(body) < 12 {
			return nil, 0, errShortHeader
		}
		srcIP := net.IP(body[0:4])
		dstIP := net.IP(body[4:8])
		srcPort := binary.BigEndian.Uint16(body[8:10])
		dstPort := binary.BigEndian.Uint16(body[10:12])
		return &Header{
			Src: &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			Dst: &net.TCPAddr{IP: dstIP, Port: int(dstPort)},
		}, total, nil
	case famProtoTCP6:
		if len(body) < 36 {
			return nil, 0, errShortHeader
		}
		srcIP := net.IP(body[0:16])
		dstIP := net.IP(body[16:32])
		srcPort := binary.BigEndian.Uint16(body[32:34])
		dstPort := binary.BigEndian.Uint16(body[34:36])
		return &Header{
			Src: &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			Dst: &net.TCPAddr{IP: dstIP, Port: int(dstPort)},
		}, total, nil
	default:
		return nil, 0, errUnsupportedFamily
	}
}
