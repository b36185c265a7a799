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

// Package supervisor owns the unport daemon's process lifecycle: the PID
// file, the periodic reaper, detaching into the background, and bringing
// the control-plane and proxy listeners up and down together.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	libatm "github.com/nabbar/unport/atomic"
	"github.com/nabbar/unport/liveness"
	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/paths"
	"github.com/nabbar/unport/registry"
)

const defaultReaperInterval = 30 * time.Second

// Task is one long-running component the supervisor brings up and tears
// down together: the rendezvous socket, the HTTP proxy, the HTTPS proxy.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	Stop func()
}

// Supervisor owns the PID file, the reaper loop, and the group of tasks
// that make up a running daemon.
type Supervisor struct {
	layout         paths.Layout
	reg            *registry.Registry
	probe          liveness.Prober
	log            logger.Logger
	reaperInterval time.Duration

	running libatm.Value[bool]
}

// New builds a Supervisor over layout's PID file and registry.
func New(layout paths.Layout, reg *registry.Registry, log logger.Logger) *Supervisor {
	return &Supervisor{
		layout:         layout,
		reg:            reg,
		probe:          liveness.New(),
		log:            log,
		reaperInterval: defaultReaperInterval,
		running:        libatm.NewValueDefault[bool](false, false),
	}
}

// SetReaperInterval overrides how often Run sweeps the registry for dead
// services. Must be called before Run.
func (s *Supervisor) SetReaperInterval(d time.Duration) {
	if d > 0 {
		s.reaperInterval = d
	}
}

func (s *Supervisor) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if s.log == nil {
		return
	}
	s.log.Entry(lvl, msg, args...).Log()
}

// AcquirePIDFile claims the PID file, reclaiming it if the previous owner is
// no longer alive, and returns an error if another live daemon holds it.
func (s *Supervisor) AcquirePIDFile() error {
	if err := s.layout.EnsureDir(); err != nil {
		return err
	}

	if raw, err := os.ReadFile(s.layout.PIDFile); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil {
			if s.probe.IsAlive(int32(pid)) {
				return fmt.Errorf("unport daemon already running (pid %d)", pid)
			}
			s.logf(loglvl.InfoLevel, "reclaiming stale pid file from dead pid %d", pid)
		}
	}

	return os.WriteFile(s.layout.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// ReadPID returns the PID recorded in the PID file, for "daemon status" and
// "daemon stop" to target the right process if the socket is unreachable.
func ReadPID(layout paths.Layout) (int, error) {
	raw, err := os.ReadFile(layout.PIDFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// Cleanup removes the PID file and the rendezvous socket, called on normal
// shutdown and defensively at startup.
func (s *Supervisor) Cleanup() {
	_ = os.Remove(s.layout.PIDFile)
	_ = os.Remove(s.layout.Socket)
}

// Reap runs registry.CleanupDead once and logs what it collected.
func (s *Supervisor) Reap() {
	dead := s.reg.CleanupDead(s.probe)
	if len(dead) > 0 {
		s.logf(loglvl.InfoLevel, "reaper swept %d dead service(s)", len(dead))
	}
}

// Run starts every task concurrently via an errgroup, runs the reaper tick
// on its own ticker, and returns once ctx is cancelled or any task fails.
func (s *Supervisor) Run(ctx context.Context, tasks []Task) error {
	s.running.Store(true)
	defer s.running.Store(false)
	defer s.Cleanup()

	s.Reap()

	g, gctx := errgroup.WithContext(ctx)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return t.Run(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(s.reaperInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				s.Reap()
			}
		}
	})

	err := g.Wait()
	for _, t := range tasks {
		if t.Stop != nil {
			t.Stop()
		}
	}

	return err
}

// IsRunning reports whether Run is currently active in this process.
func (s *Supervisor) IsRunning() bool {
	return s.running.Load()
}

// Detach re-executes the current binary with the given args, closing stdin
// and redirecting stdout/stderr to the daemon log, and returns once the
// child has started. It does not exit the calling process itself.
func Detach(layout paths.Layout, args []string) error {
	if err := layout.EnsureDir(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(layout.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	return spawnDetached(exe, args, logFile)
}
