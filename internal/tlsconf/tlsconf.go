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

// Package tlsconf builds *tls.Config values for listener-side termination
// and backend-side dialing from a small, validated configuration struct.
package tlsconf

import (
	"crypto/tls"
	"net"

	libval "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/l4lb/internal/errors"
)

const (
	codeValidate liberr.CodeError = liberr.MinPkgTLS + iota + 1
	codeLoadPair
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgTLS, func(code liberr.CodeError) string {
		switch code {
		case codeValidate:
			return "tls configuration is invalid"
		case codeLoadPair:
			return "unable to load certificate/key pair"
		}
		return ""
	})
}

// ListenerConfig describes the server-side (client-facing) TLS termination for one rule.
type ListenerConfig struct {
	Enabled bool

	CertFile string `validate:"required_if=Enabled true"`
	KeyFile  string `validate:"required_if=Enabled true"`

	MinVersion uint16 // tls.VersionTLS12, etc.; 0 = library default
	MaxVersion uint16
}

// Validate checks field constraints via validator/v10.
func (c *ListenerConfig) Validate() liberr.Error {
	if er := libval.New().Struct(c); er != nil {
		return liberr.New(codeValidate, er)
	}
	return nil
}

// Build produces a server-side *tls.Config, or nil if not enabled.
func (c *ListenerConfig) Build() (*tls.Config, liberr.Error) {
	if !c.Enabled {
		return nil, nil
	}

	pair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, liberr.New(codeLoadPair, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   versionOr(c.MinVersion, tls.VersionTLS12),
		MaxVersion:   c.MaxVersion,
	}, nil
}

// BackendConfig describes the client-side (proxy-to-backend) TLS dialing for one rule.
type BackendConfig struct {
	Enabled      bool
	IgnoreVerify bool

	MinVersion uint16
	MaxVersion uint16
}

// ConfigFor builds the *tls.Config to use when dialing addr, deriving SNI
// from the backend's hostname and falling back to no SNI for IP literals,
// rather than always sending a fixed hostname regardless of the target.
func (c *BackendConfig) ConfigFor(addr string) *tls.Config {
	if !c.Enabled {
		return nil
	}

	cfg := &tls.Config{
		InsecureSkipVerify: c.IgnoreVerify,
		MinVersion:         versionOr(c.MinVersion, tls.VersionTLS12),
		MaxVersion:         c.MaxVersion,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if net.ParseIP(host) == nil && host != "" {
		cfg.ServerName = host
	}

	return cfg
}

func versionOr(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}
