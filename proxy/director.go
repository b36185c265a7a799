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

// Package proxy is unport's reverse proxy: it routes incoming requests by
// Host header to the local port a domain was registered on, streaming
// bodies and upgrading WebSocket connections transparently. It replaces the
// teacher's generic, handler-table-keyed httpserver with a router whose
// routing table is the live service registry instead of a static map.
package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"sync"

	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/registry"
)

// Director is an http.Handler that routes by Host header into the registry,
// reverse-proxying to 127.0.0.1:<port> and answering unknown hosts with a
// 404 listing every currently registered domain.
type Director struct {
	reg *registry.Registry
	log logger.Logger

	mu    sync.Mutex
	cache map[string]*httputil.ReverseProxy
}

// NewDirector builds a Director backed by reg.
func NewDirector(reg *registry.Registry, log logger.Logger) *Director {
	return &Director{
		reg:   reg,
		log:   log,
		cache: make(map[string]*httputil.ReverseProxy),
	}
}

func (d *Director) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if d.log == nil {
		return
	}
	d.log.Entry(lvl, msg, args...).Log()
}

func (d *Director) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	svc, ok := d.reg.Get(host)
	if !ok {
		d.serveUnknownHost(w, host)
		return
	}

	d.proxyFor(svc).ServeHTTP(w, r)
}

func (d *Director) serveUnknownHost(w http.ResponseWriter, host string) {
	domains := d.reg.Domains()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	fmt.Fprintf(w, "unport: no service registered for %q\n\n", host)
	if len(domains) == 0 {
		fmt.Fprintln(w, "no domains are currently registered")
		return
	}

	fmt.Fprintln(w, "registered domains:")
	for _, dom := range domains {
		fmt.Fprintf(w, "  - %s\n", dom)
	}
}

func (d *Director) proxyFor(svc registry.Service) *httputil.ReverseProxy {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := fmt.Sprintf("%s:%d", svc.Domain, svc.Port)
	if p, ok := d.cache[key]; ok {
		return p
	}

	target := fmt.Sprintf("127.0.0.1:%d", svc.Port)

	p := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = "http"
			req.URL.Host = target
			req.Host = target
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.logf(loglvl.WarnLevel, "upstream %s (%s) unreachable: %s", svc.Domain, target, err.Error())
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintf(w, "unport: upstream for %s is not responding\n", svc.Domain)
		},
	}

	d.cache[key] = p
	return p
}

// Invalidate drops every cached reverse proxy for domain. The cache is keyed
// by domain and port, so a re-registration on a new port already gets a
// fresh proxy on the next request; Invalidate only releases the old entries.
func (d *Director) Invalidate(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := domain + ":"
	for k := range d.cache {
		if strings.HasPrefix(k, prefix) {
			delete(d.cache, k)
		}
	}
}
