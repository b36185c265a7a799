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

// Package liveness answers whether the process that registered a service is
// still alive, so the supervisor's reaper can reclaim dead entries.
package liveness

import (
	"os"

	"github.com/shirou/gopsutil/process"
)

// Prober checks whether a PID still identifies a live process.
type Prober interface {
	IsAlive(pid int32) bool
}

type prober struct{}

// New returns the default gopsutil-backed Prober.
func New() Prober {
	return prober{}
}

// IsAlive reports whether pid still names a running process. A process that
// exists but is owned by another user still counts as alive — ownership is
// irrelevant to whether it is safe to keep proxying to it.
func (prober) IsAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}

	if int(pid) == os.Getpid() {
		return true
	}

	ok, err := process.PidExists(pid)
	if err != nil {
		// Ambiguous probe result: assume alive so the reaper never evicts
		// a service it can't actually confirm is dead.
		return true
	}

	return ok
}
