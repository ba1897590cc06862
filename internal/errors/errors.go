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

// Package errors provides HTTP-status-like error codes with parent chaining,
// the same shape nabbar/golib/errors uses across its sub-packages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// CodeError is a numeric error classification, similar in spirit to an HTTP status code.
type CodeError uint16

const (
	UnknownError CodeError = 0

	// Per-package code ranges, mirroring nabbar/golib/errors/modules.go.
	MinPkgBackend    CodeError = 100
	MinPkgRateLimit  CodeError = 200
	MinPkgBandwidth  CodeError = 300
	MinPkgProxyProto CodeError = 400
	MinPkgHealth     CodeError = 500
	MinPkgGossip     CodeError = 600
	MinPkgPipeline   CodeError = 700
	MinPkgTLS        CodeError = 800
	MinPkgConfig     CodeError = 900
	MinPkgAdmin      CodeError = 1000
)

// Uint16 returns the underlying numeric value.
func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

var idMsgFct = make(map[CodeError]Message)

// Message generates the human-readable text for a registered CodeError.
type Message func(code CodeError) string

// RegisterIdFctMessage associates a message function with the package's first error code.
// Subsequent codes in the same const block reuse the same function (switch internally),
// exactly as nabbar/golib/errors/modules.go expects each package to register once in init().
func RegisterIdFctMessage(first CodeError, fct Message) {
	idMsgFct[first] = fct
}

func messageFor(code CodeError) string {
	for first, fct := range idMsgFct {
		if code >= first {
			if m := fct(code); m != "" {
				return m
			}
		}
	}
	return ""
}

// Error is the package-wide error interface: a message, a code, and optional parents.
type Error interface {
	error
	Code() CodeError
	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	Add(parent ...error)
	HasParent() bool
	GetParent() []error
	Unwrap() []error
}

type ers struct {
	code    CodeError
	message string
	parent  []error
}

func (e *ers) Error() string {
	msg := e.message
	if msg == "" {
		msg = messageFor(e.code)
	}

	if len(e.parent) == 0 {
		return msg
	}

	parts := make([]string, 0, len(e.parent)+1)
	if msg != "" {
		parts = append(parts, msg)
	}
	for _, p := range e.parent {
		if p != nil {
			parts = append(parts, p.Error())
		}
	}
	return strings.Join(parts, ": ")
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.IsCode(code) {
		return true
	}
	for _, p := range e.parent {
		if er := Get(p); er != nil && er.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.parent = append(e.parent, p)
		}
	}
}

func (e *ers) HasParent() bool {
	return len(e.parent) > 0
}

func (e *ers) GetParent() []error {
	return e.parent
}

func (e *ers) Unwrap() []error {
	return e.parent
}

// New creates an Error with the given code and optional parents.
func New(code CodeError, parent ...error) Error {
	e := &ers{code: code}
	e.Add(parent...)
	return e
}

// Newf creates an Error with a formatted, ad-hoc message instead of a registered one.
func Newf(code CodeError, pattern string, args ...any) Error {
	return &ers{code: code, message: fmt.Sprintf(pattern, args...)}
}

// Is reports whether e is (or wraps) an Error.
func Is(e error) bool {
	var target Error
	return errors.As(e, &target)
}

// Get returns e as an Error if it is one, else nil.
func Get(e error) Error {
	var target Error
	if errors.As(e, &target) {
		return target
	}
	return nil
}

// HasCode reports whether e or one of its parents carries the given code.
func HasCode(e error, code CodeError) bool {
	if er := Get(e); er != nil {
		return er.HasCode(code)
	}
	return false
}
