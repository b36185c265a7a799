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

// Package portalloc finds a TCP port free to bind on every interface a
// proxied service needs to answer on.
package portalloc

import "net"

// bindable reports whether port is free to bind simultaneously on
// 127.0.0.1, ::1, and 0.0.0.0 — the set of addresses unport's proxy and a
// locally running dev server might both listen on.
func bindable(port uint16) bool {
	for _, addr := range []string{"127.0.0.1", "::1", "0.0.0.0"} {
		l, err := net.Listen("tcp", net.JoinHostPort(addr, itoa(port)))
		if err != nil {
			return false
		}
		_ = l.Close()
	}
	return true
}

func itoa(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// Allocate scans [min, max) starting at next, wrapping once, and returns the
// first port bindable on every required interface along with the cursor the
// caller should persist as the next starting point.
//
// If a full wrap finds no free port, it returns the original cursor as a
// best-effort candidate rather than failing outright — unport prefers to
// hand back a port a caller might have to retry over refusing a
// registration.
func Allocate(next, min, max uint16) (port, newNext uint16) {
	if next < min || next >= max {
		next = min
	}

	start := next
	cur := next

	for {
		if bindable(cur) {
			n := cur + 1
			if n >= max {
				n = min
			}
			return cur, n
		}

		cur++
		if cur >= max {
			cur = min
		}
		if cur == start {
			n := cur + 1
			if n >= max {
				n = min
			}
			return cur, n
		}
	}
}
