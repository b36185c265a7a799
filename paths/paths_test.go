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

package paths_test

import (
	"os"
	"path/filepath"

	"github.com/nabbar/unport/paths"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resolve", func() {
	var prevHome string
	var hadHome bool

	BeforeEach(func() {
		prevHome, hadHome = os.LookupEnv("UNPORT_HOME")
	})

	AfterEach(func() {
		if hadHome {
			_ = os.Setenv("UNPORT_HOME", prevHome)
		} else {
			_ = os.Unsetenv("UNPORT_HOME")
		}
	})

	It("honors UNPORT_HOME when set", func() {
		Expect(os.Setenv("UNPORT_HOME", "/tmp/unport-test-home")).To(Succeed())

		l, err := paths.Resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Home).To(Equal("/tmp/unport-test-home"))
		Expect(l.PIDFile).To(Equal(filepath.Join(l.Home, "unport.pid")))
		Expect(l.Socket).To(Equal(filepath.Join(l.Home, "unport.sock")))
		Expect(l.CertsDir).To(Equal(filepath.Join(l.Home, "certs")))
		Expect(l.LeafCert).To(Equal(filepath.Join(l.CertsDir, "localhost.crt")))
	})

	It("falls back to ~/.unport when UNPORT_HOME is unset", func() {
		Expect(os.Unsetenv("UNPORT_HOME")).To(Succeed())

		l, err := paths.Resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(l.Home)).To(Equal(".unport"))
	})
})

var _ = Describe("Layout.EnsureDir", func() {
	It("creates the home and certs directories at mode 0700", func() {
		dir := GinkgoT().TempDir()
		home := filepath.Join(dir, "home")
		l := paths.Layout{Home: home, CertsDir: filepath.Join(home, "certs")}

		Expect(l.EnsureDir()).To(Succeed())

		info, err := os.Stat(l.Home)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0700)))

		info, err = os.Stat(l.CertsDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0700)))
	})
})
