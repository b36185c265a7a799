/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
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

// Package registry tracks the set of domains currently proxied by unport,
// persisting them to a JSON file and allocating ports for new registrations.
package registry

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	liberr "github.com/nabbar/unport/errors"
	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/liveness"
	"github.com/nabbar/unport/portalloc"
)

const (
	minPort uint16 = 4000
	maxPort uint16 = 5000

	defaultFilePerm os.FileMode = 0644
)

// Service describes one registered reverse-proxy target.
type Service struct {
	Domain    string `json:"domain"`
	Port      uint16 `json:"port"`
	PID       int32  `json:"pid"`
	Directory string `json:"directory"`
}

type document struct {
	NextPort uint16             `json:"next_port"`
	Services map[string]Service `json:"services"`
}

// Registry is the in-memory, mutex-guarded set of registered services,
// mirrored to disk after every mutating call.
type Registry struct {
	mu       sync.RWMutex
	path     string
	log      logger.Logger
	filePerm os.FileMode
	doc      document
}

// New loads the registry from path, falling back to an empty registry
// (next_port = 4000) whenever the file is absent, unreadable, or invalid
// JSON — availability takes priority over strict durability.
func New(path string, log logger.Logger) *Registry {
	r := &Registry{
		path:     path,
		log:      log,
		filePerm: defaultFilePerm,
		doc: document{
			NextPort: minPort,
			Services: make(map[string]Service),
		},
	}
	r.load()
	return r
}

// SetFilePerm changes the mode the registry file is (re)written with on the
// next save. Takes effect immediately; it does not rewrite the file itself.
func (r *Registry) SetFilePerm(mode os.FileMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filePerm = mode
}

func (r *Registry) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if r.log == nil {
		return
	}
	r.log.Entry(lvl, msg, args...).Log()
}

func (r *Registry) load() {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		r.logf(loglvl.InfoLevel, "no existing registry at %s, starting empty", r.path)
		return
	}

	var d document
	if err = json.Unmarshal(raw, &d); err != nil {
		r.logf(loglvl.WarnLevel, "registry file %s is corrupt, starting empty: %s", r.path, err.Error())
		return
	}

	if d.Services == nil {
		d.Services = make(map[string]Service)
	}

	max := uint16(0)
	for _, s := range d.Services {
		if s.Port > max {
			max = s.Port
		}
	}

	if max > 0 {
		d.NextPort = max + 1
	} else {
		d.NextPort = minPort
	}

	r.doc = d
}

// save rewrites the whole registry file in one call, never leaving a torn
// write visible to a concurrent reader. Persistence failures are logged
// and swallowed — the in-memory state stays authoritative.
func (r *Registry) save() {
	raw, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		r.logf(loglvl.ErrorLevel, "marshal registry: %s", err.Error())
		return
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, raw, r.filePerm); err != nil {
		r.logf(loglvl.ErrorLevel, "write registry temp file: %s", err.Error())
		return
	}

	if err = os.Rename(tmp, r.path); err != nil {
		r.logf(loglvl.ErrorLevel, "rename registry file: %s", err.Error())
	}
}

// Register allocates a port and adds the service for domain, returning the
// port it will be served on. It returns Conflict, without touching the
// existing entry, if domain is already registered.
func (r *Registry) Register(domain string, pid int32, directory string) (uint16, liberr.Error) {
	if domain == "" {
		return 0, Conflict.Error(nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doc.Services[domain]; exists {
		return 0, Conflict.Error(nil)
	}

	port, next := portalloc.Allocate(r.doc.NextPort, minPort, maxPort)
	r.doc.NextPort = next
	r.doc.Services[domain] = Service{
		Domain:    domain,
		Port:      port,
		PID:       pid,
		Directory: directory,
	}
	r.save()
	r.logf(loglvl.InfoLevel, "registered %s on port %d (pid %d)", domain, port, pid)

	return port, nil
}

// Unregister removes domain from the registry. It returns NotFound if the
// domain was never registered.
func (r *Registry) Unregister(domain string) liberr.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doc.Services[domain]; !ok {
		return NotFound.Error(nil)
	}

	delete(r.doc.Services, domain)
	r.save()
	r.logf(loglvl.InfoLevel, "unregistered %s", domain)

	return nil
}

// GetPort returns the port registered for domain.
func (r *Registry) GetPort(domain string) (uint16, liberr.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.doc.Services[domain]
	if !ok {
		return 0, NotFound.Error(nil)
	}
	return s.Port, nil
}

// Get returns the full service record for domain.
func (r *Registry) Get(domain string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.doc.Services[domain]
	return s, ok
}

// List returns every registered service, sorted by domain for stable output.
func (r *Registry) List() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Service, 0, len(r.doc.Services))
	for _, s := range r.doc.Services {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Domain < res[j].Domain })
	return res
}

// Domains returns the currently registered domain names, used to build the
// leaf certificate's SAN set.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]string, 0, len(r.doc.Services))
	for d := range r.doc.Services {
		res = append(res, d)
	}
	sort.Strings(res)
	return res
}

// Count returns the number of registered services.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.doc.Services)
}

// Snapshot returns a deep copy of the registry's document, primarily for
// tests that need to assert on persisted state without racing saves.
func (r *Registry) Snapshot() (uint16, map[string]Service) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := make(map[string]Service, len(r.doc.Services))
	for k, v := range r.doc.Services {
		cp[k] = v
	}
	return r.doc.NextPort, cp
}

// CleanupDead removes every service whose owning PID is no longer alive,
// returning the domains it dropped. Called periodically by the supervisor's
// reaper tick.
func (r *Registry) CleanupDead(probe liveness.Prober) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	dead := make([]string, 0)
	for domain, s := range r.doc.Services {
		if !probe.IsAlive(s.PID) {
			dead = append(dead, domain)
			delete(r.doc.Services, domain)
		}
	}

	if len(dead) > 0 {
		sort.Strings(dead)
		r.save()
		r.logf(loglvl.InfoLevel, "reaper removed %d dead service(s): %v", len(dead), dead)
	}

	return dead
}
