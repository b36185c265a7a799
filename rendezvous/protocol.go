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

// Package rendezvous implements unport's control-plane wire protocol: a
// line-delimited JSON request/response exchange over a Unix domain socket.
package rendezvous

import "github.com/nabbar/unport/registry"

// Request is the tagged-union of every control-plane command a client
// (the unport CLI, or a dev server's startup hook) can send.
type Request struct {
	Type      string `json:"type"`
	Domain    string `json:"domain,omitempty"`
	Port      uint16 `json:"port,omitempty"`
	PID       int32  `json:"pid,omitempty"`
	Directory string `json:"directory,omitempty"`
}

const (
	ReqRegister    = "Register"
	ReqUnregister  = "Unregister"
	ReqGetPort     = "GetPort"
	ReqList        = "List"
	ReqStop        = "Stop"
	ReqShutdown    = "Shutdown"
	ReqHttpsStatus = "HttpsStatus"
)

// Response is the tagged-union of every reply the daemon can send back.
type Response struct {
	Type     string             `json:"type"`
	Message  string             `json:"message,omitempty"`
	Port     uint16             `json:"port,omitempty"`
	Services []registry.Service `json:"services,omitempty"`
	Enabled  bool               `json:"enabled,omitempty"`
}

const (
	RespOk           = "Ok"
	RespPort         = "Port"
	RespServices     = "Services"
	RespError        = "Error"
	RespHttpsEnabled = "HttpsEnabled"
)

func ok(msg string) Response            { return Response{Type: RespOk, Message: msg} }
func errResp(msg string) Response       { return Response{Type: RespError, Message: msg} }
func portResp(p uint16) Response        { return Response{Type: RespPort, Port: p} }
func servicesResp(s []registry.Service) Response {
	return Response{Type: RespServices, Services: s}
}
func httpsResp(enabled bool) Response { return Response{Type: RespHttpsEnabled, Enabled: enabled} }
