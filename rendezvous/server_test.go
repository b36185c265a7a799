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

package rendezvous_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nabbar/unport/registry"
	"github.com/nabbar/unport/rendezvous"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func roundTrip(socketPath string, req rendezvous.Request) rendezvous.Response {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = conn.Close() }()

	Expect(json.NewEncoder(conn).Encode(req)).To(Succeed())

	var resp rendezvous.Response
	scanner := bufio.NewScanner(conn)
	Expect(scanner.Scan()).To(BeTrue())
	Expect(json.Unmarshal(scanner.Bytes(), &resp)).To(Succeed())
	return resp
}

var _ = Describe("Server", func() {
	var (
		reg        *registry.Registry
		socketPath string
		ctx        context.Context
		cancel     context.CancelFunc
		stopped    []string
		shutdowns  int
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		socketPath = filepath.Join(dir, "unport.sock")
		reg = registry.New(filepath.Join(dir, "registry.json"), nil)
		stopped = nil
		shutdowns = 0

		ctx, cancel = context.WithCancel(context.Background())

		srv := rendezvous.New(socketPath, reg, nil, false,
			func(domain string) { stopped = append(stopped, domain) },
			func() { shutdowns++ },
			nil,
		)

		go func() { _ = srv.Listen(ctx) }()

		Eventually(func() error {
			_, err := os.Stat(socketPath)
			return err
		}).Should(Succeed())
	})

	AfterEach(func() {
		cancel()
	})

	It("registers a domain and returns its allocated port", func() {
		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqRegister, Domain: "app.localhost", PID: int32(os.Getpid()), Directory: "/srv"})
		Expect(resp.Type).To(Equal(rendezvous.RespPort))
		Expect(resp.Port).To(BeNumerically(">=", 4000))
	})

	It("lists registered services", func() {
		roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqRegister, Domain: "app.localhost", PID: 1, Directory: "/srv"})

		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqList})
		Expect(resp.Type).To(Equal(rendezvous.RespServices))
		Expect(resp.Services).To(HaveLen(1))
		Expect(resp.Services[0].Domain).To(Equal("app.localhost"))
	})

	It("returns an error response for an unregistered GetPort", func() {
		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqGetPort, Domain: "missing.localhost"})
		Expect(resp.Type).To(Equal(rendezvous.RespError))
	})

	It("invokes the stop hook and removes the domain on Stop", func() {
		roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqRegister, Domain: "app.localhost", PID: 1, Directory: "/srv"})

		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqStop, Domain: "app.localhost"})
		Expect(resp.Type).To(Equal(rendezvous.RespOk))
		Expect(stopped).To(ConsistOf("app.localhost"))

		_, ok := reg.Get("app.localhost")
		Expect(ok).To(BeFalse())
	})

	It("invokes the shutdown hook on Shutdown", func() {
		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqShutdown})
		Expect(resp.Type).To(Equal(rendezvous.RespOk))
		Expect(shutdowns).To(Equal(1))
	})

	It("reports HTTPS status", func() {
		resp := roundTrip(socketPath, rendezvous.Request{Type: rendezvous.ReqHttpsStatus})
		Expect(resp.Type).To(Equal(rendezvous.RespHttpsEnabled))
		Expect(resp.Enabled).To(BeFalse())
	})
})
