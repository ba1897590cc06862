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

package config

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"

	"github.com/nabbar/l4lb/internal/logging"
)

// ApplyFunc is called with the old (possibly nil on first load) and new
// configuration whenever Manager has a validated file ready to take effect.
type ApplyFunc func(old, next *File)

// Manager owns the live configuration and watches its file for changes.
// Watching the parent directory rather than the file itself works around
// editors that save by renaming a temp file over the original — a direct
// inotify watch on the file's inode would miss that.
type Manager struct {
	path string
	log  logging.Logger

	current *File
	apply   ApplyFunc
}

// NewManager loads path for the first time and returns a Manager, or an
// error if the initial load fails — an initial load failure is fatal to
// the process.
func NewManager(path string, log logging.Logger, apply ApplyFunc) (*Manager, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{path: path, log: log, current: f, apply: apply}
	apply(nil, f)
	return m, nil
}

// Current returns the currently active configuration.
func (m *Manager) Current() *File {
	return m.current
}

// Watch blocks, reloading on every write/create event touching m.path,
// until ctx is canceled. A reload that fails validation or parsing is
// logged and the previous configuration remains active.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target, err := filepath.Abs(m.path)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if abs != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warningf("config: watcher error: %v", werr)
		}
	}
}

func (m *Manager) reload() {
	next, err := Load(m.path)
	if err != nil {
		m.log.Errorf("config: reload failed, keeping previous configuration active: %v", err)
		return
	}

	old := m.current
	m.current = next
	m.apply(old, next)
}

// RuleDiff is the result of Diff, which classifies each rule in next
// against old by name: unchanged rules (identical field values) are
// omitted, rules whose backend list, rate limit, bandwidth ceilings, or
// per-backend connection cap alone changed are reported for an in-place
// update (LoadBalancer backend set, rate limiter, bandwidth manager — no
// listener touched), rules with other field changes are reported for a
// full restart, and entirely new or removed rules are reported in Added
// and Removed.
type RuleDiff struct {
	Added        []RuleConfig
	Removed      []RuleConfig
	BackendsOnly []RuleConfig // same name, only backends/limits differ
	Restart      []RuleConfig // same name, some other field differs
}

// Diff compares old and next rule sets by name.
func Diff(old, next []RuleConfig) RuleDiff {
	oldByName := make(map[string]RuleConfig, len(old))
	for _, r := range old {
		oldByName[r.Name] = r
	}
	nextByName := make(map[string]RuleConfig, len(next))
	for _, r := range next {
		nextByName[r.Name] = r
	}

	var d RuleDiff
	for name, nr := range nextByName {
		or, existed := oldByName[name]
		if !existed {
			d.Added = append(d.Added, nr)
			continue
		}
		if reflect.DeepEqual(or, nr) {
			continue
		}
		if backendsOnlyDiffer(or, nr) {
			d.BackendsOnly = append(d.BackendsOnly, nr)
		} else {
			d.Restart = append(d.Restart, nr)
		}
	}
	for name, or := range oldByName {
		if _, stillPresent := nextByName[name]; !stillPresent {
			d.Removed = append(d.Removed, or)
		}
	}
	return d
}

// backendsOnlyDiffer reports whether a and b differ only in the fields that
// Runner.ApplyConfig can update without closing the listener: the backend
// list, the per-backend connection cap, the rate limiter, and the
// bandwidth ceilings.
func backendsOnlyDiffer(a, b RuleConfig) bool {
	a.Backends, b.Backends = nil, nil
	a.BackendConnectionLimit, b.BackendConnectionLimit = 0, 0
	a.RateLimit, b.RateLimit = RateLimitConfig{}, RateLimitConfig{}
	a.BandwidthLimit, b.BandwidthLimit = BandwidthLimitConfig{}, BandwidthLimitConfig{}
	return reflect.DeepEqual(a, b)
}
