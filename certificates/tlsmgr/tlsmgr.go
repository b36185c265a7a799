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

// Package tlsmgr owns the daemon's root CA and the leaf certificate served
// on the HTTPS proxy listener, regenerating the leaf whenever the set of
// registered domains changes and hot-swapping it into live tls.Config
// instances without disturbing in-flight connections.
package tlsmgr

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nabbar/unport/certificates"
	"github.com/nabbar/unport/certificates/certs"
	"github.com/nabbar/unport/certificates/mint"
	"github.com/nabbar/unport/logger"
	loglvl "github.com/nabbar/unport/logger/level"
)

// Manager generates and hot-swaps the leaf certificate used by the HTTPS
// proxy, keyed off the current set of registered domains.
type Manager struct {
	mu      sync.Mutex
	caKey   []byte
	caCert  []byte
	caPath  struct{ key, cert string }
	current atomic.Value // tls.Certificate
	log     logger.Logger
}

// Load reads the root CA from caKeyPath/caCertPath, minting a fresh one and
// persisting it (key file mode 0600) if either file is missing.
func Load(caKeyPath, caCertPath string, log logger.Logger) (*Manager, error) {
	return LoadWithPerm(caKeyPath, caCertPath, 0600, log)
}

// LoadWithPerm is Load with the minted key file's permissions overridden,
// for operators who configure a different ca_key_perm than unportd's
// owner-only default.
func LoadWithPerm(caKeyPath, caCertPath string, keyPerm os.FileMode, log logger.Logger) (*Manager, error) {
	m := &Manager{log: log}
	m.caPath.key, m.caPath.cert = caKeyPath, caCertPath

	key, kerr := os.ReadFile(caKeyPath)
	cert, cerr := os.ReadFile(caCertPath)

	if kerr == nil && cerr == nil {
		m.caKey, m.caCert = key, cert
		m.logf(loglvl.InfoLevel, "loaded existing root CA from %s", caCertPath)
		return m, nil
	}

	pem, err := mint.RootCA()
	if err != nil {
		return nil, err
	}

	if err = os.WriteFile(caKeyPath, pem.KeyPEM, keyPerm); err != nil {
		return nil, err
	}
	if err = os.WriteFile(caCertPath, pem.CertPEM, 0644); err != nil {
		return nil, err
	}

	m.caKey, m.caCert = pem.KeyPEM, pem.CertPEM
	m.logf(loglvl.InfoLevel, "minted new root CA at %s", caCertPath)

	return m, nil
}

func (m *Manager) logf(lvl loglvl.Level, msg string, args ...interface{}) {
	if m.log == nil {
		return
	}
	m.log.Entry(lvl, msg, args...).Log()
}

// Regenerate mints a fresh leaf certificate covering domains (plus
// localhost/loopback, added by mint.Leaf) and hot-swaps it in. In-flight
// connections keep using the tls.Certificate they already negotiated.
func (m *Manager) Regenerate(domains []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	leaf, err := mint.Leaf(m.caKey, m.caCert, domains)
	if err != nil {
		m.logf(loglvl.ErrorLevel, "regenerate leaf certificate: %s", err.Error())
		return err
	}

	c, err := certs.ParsePair(string(leaf.KeyPEM), string(leaf.CertPEM))
	if err != nil {
		m.logf(loglvl.ErrorLevel, "parse minted leaf certificate: %s", err.Error())
		return err
	}

	tc := c.TLS()
	m.current.Store(tc)
	m.logf(loglvl.InfoLevel, "rotated leaf certificate for %d domain(s)", len(domains))

	return nil
}

// GetCertificate is wired into tls.Config.GetCertificate so every new
// handshake picks up the latest rotated certificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if v := m.current.Load(); v != nil {
		tc := v.(tls.Certificate)
		return &tc, nil
	}
	return nil, nil
}

// TLSConfig returns a *tls.Config wired to this manager's hot-swappable
// certificate, ready for http2.ConfigureServer and the HTTPS listener.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// RootCAPEM returns the root CA certificate in PEM form, e.g. for the CLI
// to print installation instructions.
func (m *Manager) RootCAPEM() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caCert
}

// TrustPool builds an x509.CertPool containing only this manager's root CA,
// using the teacher's generic TLSConfig builder as the pool accessor. It lets
// a client command (e.g. "unportd ca trust") validate the minted CA before
// instructing the operator to install it, without hand-rolling pool
// management that the teacher's certificates package already does.
func (m *Manager) TrustPool() (*x509.CertPool, error) {
	m.mu.Lock()
	caCert := m.caCert
	m.mu.Unlock()

	cfg := certificates.New()
	if !cfg.AddRootCAString(string(caCert)) {
		return nil, fmt.Errorf("tlsmgr: root CA PEM rejected by trust pool")
	}
	return cfg.GetRootCAPool(), nil
}
