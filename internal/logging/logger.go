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

// Package logging wraps logrus with the small, level-keyed interface the
// rest of this repo depends on, plus an hclog adapter for libraries (like
// memberlist) that expect one.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus' severity levels under this repo's own names.
type Level uint32

const (
	NilLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// LevelFromString maps the config file's log.level strings to a Level,
// defaulting to InfoLevel for an empty or unrecognized value.
func LevelFromString(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "info", "":
		return InfoLevel
	default:
		return InfoLevel
	}
}

func (l Level) toLogrus() logrus.Level {
	switch l {
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.PanicLevel
	}
}

// Fields is a set of structured key/value pairs attached to every entry.
type Fields map[string]interface{}

// Add returns a copy of f with key set to val.
func (f Fields) Add(key string, val interface{}) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = val
	return out
}

// Logger is the small structured-logging surface used across this repo.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithFields(f Fields) Logger
	SetLevel(l Level)
	GetLevel() Level
}

type logger struct {
	entry *logrus.Entry
	level Level
}

// New creates a Logger writing to w at the given level.
func New(w io.Writer, level Level) Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(level.toLogrus())
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &logger{entry: logrus.NewEntry(base), level: level}
}

func (l *logger) Debugf(format string, args ...interface{})   { l.entry.Debugf(format, args...) }
func (l *logger) Infof(format string, args ...interface{})    { l.entry.Infof(format, args...) }
func (l *logger) Warningf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }

func (l *logger) WithFields(f Fields) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(f)), level: l.level}
}

func (l *logger) SetLevel(lvl Level) {
	l.level = lvl
	l.entry.Logger.SetLevel(lvl.toLogrus())
}

func (l *logger) GetLevel() Level {
	return l.level
}
