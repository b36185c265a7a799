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

// Package paths resolves the unport daemon's home directory (~/.unport) and
// the well-known file paths living under it.
package paths

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

const dirName = ".unport"

// Layout holds every path the daemon and CLI read or write under the
// unport home directory.
type Layout struct {
	Home     string
	PIDFile  string
	Socket   string
	Registry string
	Log      string
	CAKey    string
	CACert   string
	CertsDir string
	LeafKey  string
	LeafCert string
}

// Resolve expands ~/.unport (or UNPORT_HOME, when set) into a Layout.
// It does not create any file or directory; call EnsureDir for that.
func Resolve() (Layout, error) {
	home := os.Getenv("UNPORT_HOME")

	if home == "" {
		h, err := homedir.Dir()
		if err != nil {
			return Layout{}, err
		}
		home = filepath.Join(h, dirName)
	}

	certs := filepath.Join(home, "certs")

	return Layout{
		Home:     home,
		PIDFile:  filepath.Join(home, "unport.pid"),
		Socket:   filepath.Join(home, "unport.sock"),
		Registry: filepath.Join(home, "registry.json"),
		Log:      filepath.Join(home, "daemon.log"),
		CAKey:    filepath.Join(home, "ca.key"),
		CACert:   filepath.Join(home, "ca.crt"),
		CertsDir: certs,
		LeafKey:  filepath.Join(certs, "localhost.key"),
		LeafCert: filepath.Join(certs, "localhost.crt"),
	}, nil
}

// EnsureDir creates the home directory and the certs sub-directory, both
// owner-only (0700), if they do not already exist.
func (l Layout) EnsureDir() error {
	if err := os.MkdirAll(l.Home, 0700); err != nil {
		return err
	}
	return os.MkdirAll(l.CertsDir, 0700)
}
