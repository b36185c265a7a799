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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/nabbar/unport/certificates/tlsmgr"
	"github.com/nabbar/unport/config"
	"github.com/nabbar/unport/duration"
	"github.com/nabbar/unport/file/perm"
	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/paths"
	"github.com/nabbar/unport/proxy"
	"github.com/nabbar/unport/registry"
	"github.com/nabbar/unport/rendezvous"
	"github.com/nabbar/unport/supervisor"
)

// loadConfig merges unportd's built-in defaults with whatever reaper
// interval / file permission overrides viper picked up from a config file
// or UNPORT_-prefixed environment variables.
func loadConfig() config.Config {
	cfg := config.Default()

	// viper.Unmarshal only sees environment variables for keys it already
	// knows, so each config key is bound to its UNPORT_ variable explicitly.
	for _, key := range []string{"reaper_interval", "registry_perm", "ca_key_perm"} {
		_ = viper.BindEnv(key)
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		duration.ViperDecoderHook(),
		perm.ViperDecoderHook(),
	)
	opt := viper.DecodeHook(hook)

	if err := viper.Unmarshal(&cfg, opt); err != nil {
		return config.Default()
	}
	return cfg
}

// signalProcess delivers SIGTERM to pid, the termination signal unport
// sends a registered dev server when its domain is explicitly stopped.
func signalProcess(pid int32, log logger.Logger) {
	if pid <= 0 {
		return
	}
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return
	}
	if err = proc.Signal(syscall.SIGTERM); err != nil {
		log.Entry(loglvl.WarnLevel, "failed to signal pid %d: %s", pid, err.Error()).Log()
	}
}

func detachStart(layout paths.Layout, args []string) error {
	if err := supervisor.Detach(layout, args); err != nil {
		return err
	}
	fmt.Printf("unport daemon starting in background, logging to %s\n", layout.Log)
	return nil
}

func runForeground(layout paths.Layout, https bool) error {
	log := newLogger()
	cfg := loadConfig()

	if err := layout.EnsureDir(); err != nil {
		return err
	}

	reg := registry.New(layout.Registry, log)
	reg.SetFilePerm(cfg.RegistryPerm.FileMode())

	sup := supervisor.New(layout, reg, log)
	sup.SetReaperInterval(cfg.ReaperInterval.Time())

	if err := sup.AcquirePIDFile(); err != nil {
		return err
	}

	director := proxy.NewDirector(reg, log)

	var tm *tlsmgr.Manager
	if https {
		var err error
		tm, err = tlsmgr.LoadWithPerm(layout.CAKey, layout.CACert, cfg.CAKeyPerm.FileMode(), log)
		if err != nil {
			return err
		}
		if err = tm.Regenerate(reg.Domains()); err != nil {
			return err
		}
	}

	tasks := []supervisor.Task{
		httpProxyTask(director, log),
	}
	if tm != nil {
		tasks = append(tasks, httpsProxyTask(director, tm, log))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onStop := func(domain string) {
		if s, ok := reg.Get(domain); ok {
			signalProcess(s.PID, log)
		}
	}

	rdv := rendezvous.New(layout.Socket, reg, tm, https, onStop, cancel, log)
	tasks = append(tasks, rendezvousTask(rdv))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Entry(loglvl.InfoLevel, "received termination signal, shutting down").Log()
		cancel()
	}()

	return sup.Run(ctx, tasks)
}

func httpProxyTask(director *proxy.Director, log logger.Logger) supervisor.Task {
	srv := proxy.NewHTTP("0.0.0.0:80", director, log)
	return supervisor.Task{
		Name: "http-proxy",
		Run: func(ctx context.Context) error {
			return srv.Listen(ctx)
		},
		Stop: srv.Shutdown,
	}
}

func httpsProxyTask(director *proxy.Director, tm *tlsmgr.Manager, log logger.Logger) supervisor.Task {
	srv := proxy.NewHTTPS("0.0.0.0:443", director, tm.TLSConfig(), log)
	return supervisor.Task{
		Name: "https-proxy",
		Run: func(ctx context.Context) error {
			return srv.Listen(ctx)
		},
		Stop: srv.Shutdown,
	}
}

func rendezvousTask(rdv *rendezvous.Server) supervisor.Task {
	return supervisor.Task{
		Name: "rendezvous",
		Run: func(ctx context.Context) error {
			return rdv.Listen(ctx)
		},
		Stop: func() { _ = rdv.Close() },
	}
}

// clientDial opens a short-lived connection to the rendezvous socket and
// exchanges exactly one request/response pair.
func clientDial(layout paths.Layout, req rendezvous.Request) (rendezvous.Response, error) {
	conn, err := net.DialTimeout("unix", layout.Socket, 2*time.Second)
	if err != nil {
		return rendezvous.Response{}, err
	}
	defer func() { _ = conn.Close() }()

	if err = json.NewEncoder(conn).Encode(req); err != nil {
		return rendezvous.Response{}, err
	}

	var resp rendezvous.Response
	if err = json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return rendezvous.Response{}, err
	}

	return resp, nil
}

func clientShutdown(layout paths.Layout) error {
	resp, err := clientDial(layout, rendezvous.Request{Type: rendezvous.ReqShutdown})
	if err != nil {
		return fmt.Errorf("could not reach unport daemon: %w", err)
	}
	if resp.Type == rendezvous.RespError {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Println("unport daemon stopped")
	return nil
}

// caTrust prints the daemon's root CA in PEM form after confirming it loads
// into a valid trust pool, so operators can pipe it straight into a system
// or browser trust store.
func caTrust(layout paths.Layout) error {
	log := newLogger()

	tm, err := tlsmgr.Load(layout.CAKey, layout.CACert, log)
	if err != nil {
		return err
	}

	if _, err = tm.TrustPool(); err != nil {
		return err
	}

	fmt.Print(string(tm.RootCAPEM()))
	return nil
}

func clientStatus(layout paths.Layout) error {
	resp, err := clientDial(layout, rendezvous.Request{Type: rendezvous.ReqHttpsStatus})
	if err != nil {
		fmt.Println(color.RedString("unport daemon is not running"))
		return nil
	}

	fmt.Println(color.GreenString("unport daemon is running"))
	fmt.Printf("https enabled: %v\n", resp.Enabled)

	if list, err := clientDial(layout, rendezvous.Request{Type: rendezvous.ReqList}); err == nil {
		fmt.Printf("registered domains: %d\n", len(list.Services))
		for _, s := range list.Services {
			fmt.Printf("  - %s -> 127.0.0.1:%d (pid %d)\n", s.Domain, s.Port, s.PID)
		}
	}

	return nil
}
