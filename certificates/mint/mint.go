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

// Package mint generates the root CA and leaf certificates unport needs for
// its HTTPS proxy. The rest of the certificates tree (ca, certs) only parses
// PEM material handed to it; mint is what produces that material in the
// first place, feeding its output straight into certs.ParsePair to build the
// tls.Certificate the proxy hot-swaps in.
package mint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	caValidity   = 10 * 365 * 24 * time.Hour
	leafValidity = 825 * 24 * time.Hour // 825 days, about 27 months
)

// PEM is a generated private key and certificate, each PEM-encoded.
type PEM struct {
	KeyPEM  []byte
	CertPEM []byte
}

// RootCA generates a fresh ECDSA P-256 certificate authority. The caller is
// responsible for writing KeyPEM with owner-only permissions.
func RootCA() (PEM, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return PEM{}, err
	}

	serial, err := randomSerial()
	if err != nil {
		return PEM{}, err
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "unport local CA", Organization: []string{"unport"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(caValidity),
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		return PEM{}, err
	}

	return encode(key, der)
}

// Leaf mints a fresh leaf certificate signed by the given CA, valid for
// every domain in sans plus "localhost" and the loopback addresses. It is
// regenerated from scratch (new key, new certificate) on every call — unport
// never reuses a leaf key across registrations.
func Leaf(caKeyPEM, caCertPEM []byte, sans []string) (PEM, error) {
	caKey, caCert, err := decodeCA(caKeyPEM, caCertPEM)
	if err != nil {
		return PEM{}, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return PEM{}, err
	}

	serial, err := randomSerial()
	if err != nil {
		return PEM{}, err
	}

	dnsNames := uniqueAppend(sans, "localhost")
	ips := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "unport local proxy"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return PEM{}, err
	}

	return encode(key, der)
}

func decodeCA(keyPEM, certPEM []byte) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	kb, _ := pem.Decode(keyPEM)
	if kb == nil {
		return nil, nil, fmt.Errorf("mint: invalid CA key PEM")
	}
	key, err := x509.ParseECPrivateKey(kb.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: parse CA key: %w", err)
	}

	cb, _ := pem.Decode(certPEM)
	if cb == nil {
		return nil, nil, fmt.Errorf("mint: invalid CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(cb.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: parse CA certificate: %w", err)
	}

	return key, cert, nil
}

func encode(key *ecdsa.PrivateKey, certDER []byte) (PEM, error) {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return PEM{}, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	return PEM{KeyPEM: keyPEM, CertPEM: certPEM}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

func uniqueAppend(domains []string, extra ...string) []string {
	seen := make(map[string]bool, len(domains)+len(extra))
	res := make([]string, 0, len(domains)+len(extra))

	add := func(d string) {
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		res = append(res, d)
	}

	for _, d := range extra {
		add(d)
	}
	for _, d := range domains {
		add(d)
	}

	return res
}
