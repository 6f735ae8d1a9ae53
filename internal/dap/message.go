package dap

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-dap"
)

// Message types carried in the "type" field
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Envelope is the part common to every DAP message
type Envelope struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`
}

// Request is a DAP request whose arguments are kept as raw JSON
type Request struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is a DAP response whose body is kept as raw JSON
type Response struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Command    string          `json:"command"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event is a DAP event whose body is kept as raw JSON
type Event struct {
	Seq   int             `json:"seq"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// NewRequest builds a request with args marshalled as its arguments
func NewRequest(command string, args any) (*Request, error) {
	req := &Request{Type: TypeRequest, Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s arguments: %w", command, err)
		}
		req.Arguments = raw
	}
	return req, nil
}

// ParseRequest decodes a raw frontend message into a Request
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid DAP request: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("invalid DAP request: missing command")
	}
	if req.Type == "" {
		req.Type = TypeRequest
	}
	return &req, nil
}

// DecodeArguments unmarshals the request arguments into v
func (r *Request) DecodeArguments(v any) error {
	if len(r.Arguments) == 0 {
		return fmt.Errorf("%s request has no arguments", r.Command)
	}
	if err := json.Unmarshal(r.Arguments, v); err != nil {
		return fmt.Errorf("invalid %s arguments: %w", r.Command, err)
	}
	return nil
}

// DecodeBody unmarshals the response body into v
func (r *Response) DecodeBody(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("%s response has no body", r.Command)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("invalid %s response body: %w", r.Command, err)
	}
	return nil
}

// SetBody replaces the response body with body marshalled to JSON
func (r *Response) SetBody(body any) error {
	if body == nil {
		r.Body = nil
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s response body: %w", r.Command, err)
	}
	r.Body = raw
	return nil
}

// NewResponse builds a successful reply to req carrying body
func NewResponse(req *Request, body any) *Response {
	resp := &Response{
		Type:       TypeResponse,
		RequestSeq: req.Seq,
		Success:    true,
		Command:    req.Command,
	}
	if err := resp.SetBody(body); err != nil {
		return NewErrorResponse(req, err.Error())
	}
	return resp
}

// NewErrorResponse builds a failed reply to req with a standard error body
func NewErrorResponse(req *Request, message string) *Response {
	resp := &Response{
		Type:       TypeResponse,
		RequestSeq: req.Seq,
		Success:    false,
		Command:    req.Command,
		Message:    message,
	}
	_ = resp.SetBody(dap.ErrorResponseBody{
		Error: &dap.ErrorMessage{Format: message, ShowUser: true},
	})
	return resp
}

// NewFailureResponse builds a failed reply to req with a custom body
func NewFailureResponse(req *Request, message string, body any) *Response {
	resp := NewErrorResponse(req, message)
	if body != nil {
		if err := resp.SetBody(body); err != nil {
			return NewErrorResponse(req, err.Error())
		}
	}
	return resp
}

// result is what a waiting caller receives for one in-flight request
type result struct {
	resp *Response
	err  error
}

// pendingRequests tracks in-flight requests by the sequence number sent to the adapter
type pendingRequests struct {
	mu     sync.Mutex
	m      map[int]chan result
	closed error
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{m: make(map[int]chan result)}
}

// add registers seq and returns the channel its reply will be delivered on
func (p *pendingRequests) add(seq int) (chan result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return nil, p.closed
	}
	ch := make(chan result, 1)
	p.m[seq] = ch
	return ch, nil
}

// resolve delivers resp to its waiter; it reports false for unknown sequence numbers
func (p *pendingRequests) resolve(resp *Response) bool {
	p.mu.Lock()
	ch, ok := p.m[resp.RequestSeq]
	delete(p.m, resp.RequestSeq)
	p.mu.Unlock()

	if ok {
		ch <- result{resp: resp}
	}
	return ok
}

func (p *pendingRequests) remove(seq int) {
	p.mu.Lock()
	delete(p.m, seq)
	p.mu.Unlock()
}

// drain fails every waiter with err and rejects future adds
func (p *pendingRequests) drain(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed == nil {
		p.closed = err
	}
	for seq, ch := range p.m {
		ch <- result{err: err}
		delete(p.m, seq)
	}
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
