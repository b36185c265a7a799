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

// Package config defines unportd's on-disk/viper configuration surface: the
// few knobs an operator can tune without recompiling (the reaper's sweep
// interval and the file permissions the registry and root CA key are
// written with). It reuses the teacher's duration and file/perm types so
// these values parse the same extended "5d23h" / "0600" notations the rest
// of the corpus's configs accept.
package config

import (
	"github.com/nabbar/unport/duration"
	"github.com/nabbar/unport/file/perm"
)

// Config holds the tunable knobs unportd reads from its config file or
// UNPORT_-prefixed environment variables.
type Config struct {
	ReaperInterval duration.Duration `mapstructure:"reaper_interval" json:"reaper_interval" yaml:"reaper_interval" toml:"reaper_interval"`
	RegistryPerm   perm.Perm         `mapstructure:"registry_perm" json:"registry_perm" yaml:"registry_perm" toml:"registry_perm"`
	CAKeyPerm      perm.Perm         `mapstructure:"ca_key_perm" json:"ca_key_perm" yaml:"ca_key_perm" toml:"ca_key_perm"`
}

// Default returns unportd's built-in configuration: a 30s reaper sweep, a
// world-readable registry file, and an owner-only CA key.
func Default() Config {
	return Config{
		ReaperInterval: duration.Seconds(30),
		RegistryPerm:   perm.Perm(0644),
		CAKeyPerm:      perm.Perm(0600),
	}
}
