// Package daptest provides an in-memory debug adapter for tests.
package daptest

import (
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/ctagard/cellbridge/internal/dap"
)

// HandlerFunc answers one request. Returning nil leaves the request unanswered.
type HandlerFunc func(req *dap.Request) *dap.Response

// Adapter is a scripted DAP server on one end of a net.Pipe
type Adapter struct {
	t      testing.TB
	server *dap.Transport

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	requests []*dap.Request
	seq      int

	wg sync.WaitGroup
}

// New starts a fake adapter and returns it with the client side transport.
// The adapter is closed when the test ends.
func New(t testing.TB) (*Adapter, *dap.Transport) {
	clientConn, serverConn := net.Pipe()

	a := &Adapter{
		t:        t,
		server:   dap.NewTransport(serverConn),
		handlers: make(map[string]HandlerFunc),
	}

	a.wg.Add(1)
	go a.serve()

	t.Cleanup(a.Close)
	return a, dap.NewTransport(clientConn)
}

// Handle installs fn for command, replacing the default empty success reply
func (a *Adapter) Handle(command string, fn HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[command] = fn
}

// Requests returns the requests received so far for command
func (a *Adapter) Requests(command string) []*dap.Request {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*dap.Request
	for _, r := range a.requests {
		if r.Command == command {
			out = append(out, r)
		}
	}
	return out
}

// SendEvent writes an event to the client
func (a *Adapter) SendEvent(event string, body any) {
	evt := &dap.Event{Seq: a.nextSeq(), Type: dap.TypeEvent, Event: event}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Errorf("daptest: encode %s event: %v", event, err)
			return
		}
		evt.Body = raw
	}
	if err := a.server.Send(evt); err != nil {
		a.t.Logf("daptest: send %s event: %v", event, err)
	}
}

// Close drops the connection, as a crashed adapter would
func (a *Adapter) Close() {
	_ = a.server.Close()
	a.wg.Wait()
}

func (a *Adapter) nextSeq() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return a.seq
}

func (a *Adapter) serve() {
	defer a.wg.Done()

	for {
		payload, err := a.server.ReadMessage()
		if err != nil {
			return
		}

		req, err := dap.ParseRequest(payload)
		if err != nil {
			a.t.Errorf("daptest: %v", err)
			continue
		}

		a.mu.Lock()
		a.requests = append(a.requests, req)
		fn, ok := a.handlers[req.Command]
		a.mu.Unlock()

		var resp *dap.Response
		if ok {
			resp = fn(req)
		} else {
			resp = dap.NewResponse(req, nil)
		}
		if resp == nil {
			continue
		}

		resp.Seq = a.nextSeq()
		if err := a.server.Send(resp); err != nil {
			return
		}
	}
}
