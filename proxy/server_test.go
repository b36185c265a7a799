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

package proxy_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nabbar/unport/proxy"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server", func() {
	It("reports PortInUse against a listener that is actually bound", func() {
		addr := "127.0.0.1:18765"
		s := proxy.NewHTTP(addr, http.NewServeMux(), nil)
		Expect(s.PortInUse()).To(BeFalse())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Expect(s.Listen(ctx)).To(Succeed())
		Eventually(s.IsRunning).Should(BeTrue())

		Expect(s.PortInUse()).To(BeTrue())

		cancel()
		Eventually(s.IsRunning).Should(BeFalse())
	})

	It("serves the wrapped handler once listening", func() {
		addr := "127.0.0.1:18766"
		s := proxy.NewHTTP(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "ok")
		}), nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Expect(s.Listen(ctx)).To(Succeed())
		Eventually(s.IsRunning).Should(BeTrue())

		client := http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get("http://" + addr + "/")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
