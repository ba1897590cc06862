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

package logging

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// hclogAdapter bridges a Logger to the hclog.Logger interface memberlist expects.
type hclogAdapter struct {
	l Logger
}

// NewHCLog wraps l as an hclog.Logger, for libraries (memberlist) that require one.
func NewHCLog(l Logger) hclog.Logger {
	return &hclogAdapter{l: l}
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.Debug(msg, args...)
	case hclog.Info:
		h.Info(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	}
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.Debug(msg, args...) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.l.Debugf("%s %v", msg, args) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.l.Infof("%s %v", msg, args) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.l.Warningf("%s %v", msg, args) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.l.Errorf("%s %v", msg, args) }

func (h *hclogAdapter) IsTrace() bool { return h.l.GetLevel() >= DebugLevel }
func (h *hclogAdapter) IsDebug() bool { return h.l.GetLevel() >= DebugLevel }
func (h *hclogAdapter) IsInfo() bool  { return h.l.GetLevel() >= InfoLevel }
func (h *hclogAdapter) IsWarn() bool  { return h.l.GetLevel() >= WarnLevel }
func (h *hclogAdapter) IsError() bool { return h.l.GetLevel() >= ErrorLevel }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return nil }

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	return h
}

func (h *hclogAdapter) Name() string { return "" }

func (h *hclogAdapter) Named(name string) hclog.Logger {
	return &hclogAdapter{l: h.l.WithFields(Fields{"name": name})}
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return h.Named(name)
}

func (h *hclogAdapter) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.l.SetLevel(DebugLevel)
	case hclog.Info:
		h.l.SetLevel(InfoLevel)
	case hclog.Warn:
		h.l.SetLevel(WarnLevel)
	case hclog.Error:
		h.l.SetLevel(ErrorLevel)
	case hclog.Off, hclog.NoLevel:
		h.l.SetLevel(NilLevel)
	}
}

func (h *hclogAdapter) GetLevel() hclog.Level {
	switch h.l.GetLevel() {
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel:
		return hclog.Error
	default:
		return hclog.Off
	}
}

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return logWriter{l: h.l}
}

// logWriter adapts Logger to io.Writer so memberlist's internal *log.Logger can write through it.
type logWriter struct {
	l Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.l.Infof("%s", string(p))
	return len(p), nil
}
