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

package rendezvous

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nabbar/unport/certificates/tlsmgr"
	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/registry"
)

// Server accepts control-plane connections on a Unix domain socket and
// dispatches each line-delimited JSON request to the registry / TLS manager
// / shutdown hook it was built with.
type Server struct {
	socketPath string
	reg        *registry.Registry
	tls        *tlsmgr.Manager
	httpsOn    bool
	onStop     func(domain string)
	onShutdown func()
	log        logger.Logger

	running atomic.Bool
	ln      net.Listener
}

// New builds a Server bound to socketPath. onStop is invoked for a Stop
// request (by domain); onShutdown is invoked for a Shutdown request before
// the Ok response is written, mirroring a synchronous termination signal.
func New(socketPath string, reg *registry.Registry, tm *tlsmgr.Manager, httpsEnabled bool, onStop func(domain string), onShutdown func(), log logger.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		reg:        reg,
		tls:        tm,
		httpsOn:    httpsEnabled,
		onStop:     onStop,
		onShutdown: onShutdown,
		log:        log,
	}
}

func (s *Server) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if s.log == nil {
		return
	}
	s.log.Entry(lvl, msg, args...).Log()
}

// Listen creates the rendezvous socket (mode 0777, per unport's
// multi-user-friendly control plane) and starts accepting connections until
// ctx is cancelled or Close is called.
func (s *Server) Listen(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err = os.Chmod(s.socketPath, 0777); err != nil {
		_ = ln.Close()
		return err
	}

	s.ln = ln
	s.running.Store(true)

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			s.logf(loglvl.WarnLevel, "rendezvous accept: %s", err.Error())
			continue
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections and removes the socket file.
func (s *Server) Close() error {
	s.running.Store(false)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	_ = os.Remove(s.socketPath)
	return nil
}

// handle serves one connection's request/response lines. A line that is not
// valid JSON gets one Error response and the connection is then closed. Each
// connection is tagged with a correlation id so concurrent control-plane
// sessions can be told apart in the debug log.
func (s *Server) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	corrID := uuid.NewString()
	s.logf(loglvl.DebugLevel, "rendezvous connection %s accepted", corrID)

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(errResp("malformed request: " + err.Error()))
			return
		}

		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.logf(loglvl.WarnLevel, "rendezvous connection %s write response: %s", corrID, err.Error())
			return
		}

		if req.Type == ReqShutdown {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Type {
	case ReqRegister:
		port, err := s.reg.Register(req.Domain, req.PID, req.Directory)
		if err != nil {
			return errResp(err.Error())
		}
		if s.tls != nil {
			if e := s.tls.Regenerate(s.reg.Domains()); e != nil {
				s.logf(loglvl.ErrorLevel, "tls regeneration after register: %s", e.Error())
			}
		}
		return portResp(port)

	case ReqUnregister:
		if err := s.reg.Unregister(req.Domain); err != nil {
			return errResp(err.Error())
		}
		if s.tls != nil {
			if e := s.tls.Regenerate(s.reg.Domains()); e != nil {
				s.logf(loglvl.ErrorLevel, "tls regeneration after unregister: %s", e.Error())
			}
		}
		return ok("")

	case ReqGetPort:
		port, err := s.reg.GetPort(req.Domain)
		if err != nil {
			return errResp(err.Error())
		}
		return portResp(port)

	case ReqList:
		return servicesResp(s.reg.List())

	case ReqStop:
		if _, ok := s.reg.Get(req.Domain); !ok {
			return errResp("domain not registered: " + req.Domain)
		}
		if s.onStop != nil {
			s.onStop(req.Domain)
		}
		_ = s.reg.Unregister(req.Domain)
		return ok("")

	case ReqShutdown:
		s.logf(loglvl.InfoLevel, "shutdown requested over rendezvous socket")
		if s.onShutdown != nil {
			s.onShutdown()
		}
		return ok("shutting down")

	case ReqHttpsStatus:
		return httpsResp(s.httpsOn)

	default:
		return errResp("unknown request type: " + req.Type)
	}
}
