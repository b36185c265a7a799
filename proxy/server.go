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

package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
)

const shutdownTimeout = 10 * time.Second

// Server is a single HTTP or HTTPS listener serving the Director, following
// the teacher httpserver package's atomic running-flag and graceful-restart
// shape, simplified down to the one listener per scheme unport needs.
type Server struct {
	name      string
	addr      string
	handler   http.Handler
	tlsConfig *tls.Config
	log       logger.Logger

	running atomic.Bool
	srv     *http.Server
}

// NewHTTP builds a plain HTTP listener (the port-80 proxy).
func NewHTTP(addr string, handler http.Handler, log logger.Logger) *Server {
	return &Server{name: "http", addr: addr, handler: handler, log: log}
}

// NewHTTPS builds a TLS listener (the port-443 proxy) using tlsConfig, whose
// GetCertificate callback is expected to come from certificates/tlsmgr so
// the certificate can be hot-swapped without restarting the listener.
func NewHTTPS(addr string, handler http.Handler, tlsConfig *tls.Config, log logger.Logger) *Server {
	return &Server{name: "https", addr: addr, handler: handler, tlsConfig: tlsConfig, log: log}
}

func (s *Server) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if s.log == nil {
		return
	}
	s.log.Entry(lvl, msg, args...).Log()
}

// PortInUse probes whether addr already has a listener, mirroring the
// teacher's dialer-based pre-flight check before binding.
func (s *Server) PortInUse() bool {
	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.Dial("tcp", s.addr)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen starts the server in the background. It returns once the listener
// is bound (or binding fails), not once the server stops.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:      s.addr,
		Handler:   s.handler,
		TLSConfig: s.tlsConfig,
	}

	if s.tlsConfig != nil {
		if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.srv = srv
	s.running.Store(true)

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	go func() {
		defer s.running.Store(false)

		s.logf(loglvl.InfoLevel, "%s proxy listening on %s", s.name, s.addr)

		var serveErr error
		if s.tlsConfig != nil {
			serveErr = srv.ServeTLS(ln, "", "")
		} else {
			serveErr = srv.Serve(ln)
		}

		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logf(loglvl.ErrorLevel, "%s proxy stopped: %s", s.name, serveErr.Error())
		}
	}()

	return nil
}

// IsRunning reports whether the listener's serve loop is currently active.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Shutdown gracefully stops the listener, waiting up to shutdownTimeout for
// in-flight requests to drain.
func (s *Server) Shutdown() {
	if s.srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logf(loglvl.WarnLevel, "%s proxy shutdown: %s", s.name, err.Error())
	}

	s.running.Store(false)
}
