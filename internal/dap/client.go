package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
)

// DefaultRequestTimeout bounds a request when neither the caller nor the options set a deadline
const DefaultRequestTimeout = 30 * time.Second

// ClientOptions configures a Client
type ClientOptions struct {
	Log logr.Logger

	// OnEvent receives every adapter event, in arrival order, after the stopped
	// thread set has been updated. It runs on the read goroutine and must not block.
	OnEvent func(*Event)

	// RequestTimeout bounds requests whose context has no deadline
	RequestTimeout time.Duration
}

// Client exchanges requests and events with a debug adapter over a Transport
type Client struct {
	transport *Transport
	log       logr.Logger
	onEvent   func(*Event)
	timeout   time.Duration

	seq     atomic.Int64
	pending *pendingRequests
	threads *ThreadSet

	// Closed when the read loop exits; err holds the reason
	done    chan struct{}
	errMu   sync.Mutex
	err     error
	closing atomic.Bool

	wg sync.WaitGroup
}

// NewClient creates a new DAP client with the given transport and starts reading from it
func NewClient(transport *Transport, opts ClientOptions) *Client {
	log := opts.Log
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		transport: transport,
		log:       log,
		onEvent:   opts.OnEvent,
		timeout:   timeout,
		pending:   newPendingRequests(),
		threads:   NewThreadSet(),
		done:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Threads returns the stopped thread set maintained from adapter events
func (c *Client) Threads() *ThreadSet {
	return c.threads
}

// Done is closed once the adapter connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is alive
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	var exitErr error
	for {
		payload, err := c.transport.ReadMessage()
		if err != nil {
			// Framing errors leave the stream in an unknown state, so any read error ends the loop
			exitErr = err
			break
		}

		if err := c.handleMessage(payload); err != nil {
			consecutiveErrors++
			c.log.Error(err, "Dropping malformed DAP message", "attempt", consecutiveErrors)
			if consecutiveErrors >= maxConsecutiveErrors {
				exitErr = fmt.Errorf("too many consecutive malformed messages: %w", err)
				break
			}
			continue
		}

		consecutiveErrors = 0
	}

	if !errors.Is(exitErr, ErrTransportClosed) {
		exitErr = fmt.Errorf("%w: %v", ErrTransportClosed, exitErr)
	}
	if !c.closing.Load() {
		c.log.Info("Debug adapter connection lost", "reason", exitErr.Error())
	}

	c.errMu.Lock()
	c.err = exitErr
	c.errMu.Unlock()

	c.threads.Clear()
	c.pending.drain(exitErr)
	_ = c.transport.Close()
	close(c.done)
}

// handleMessage routes one incoming payload
func (c *Client) handleMessage(payload []byte) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid DAP envelope: %w", err)
	}

	switch env.Type {
	case TypeResponse:
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("invalid DAP response: %w", err)
		}
		if !c.pending.resolve(&resp) {
			c.log.V(1).Info("Discarding response with no waiter", "command", resp.Command, "requestSeq", resp.RequestSeq)
		}

	case TypeEvent:
		var evt Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("invalid DAP event: %w", err)
		}
		c.trackThreads(payload)
		c.log.V(2).Info("Adapter event", "event", evt.Event, "body", string(evt.Body))
		if c.onEvent != nil {
			c.onEvent(&evt)
		}

	case TypeRequest:
		// Reverse requests (runInTerminal, startDebugging) have no meaning for an attached JIT process
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("invalid DAP reverse request: %w", err)
		}
		reply := NewErrorResponse(&req, fmt.Sprintf("reverse request %q is not supported", req.Command))
		reply.Seq = c.nextSeq()
		if err := c.transport.Send(reply); err != nil {
			c.log.Error(err, "Failed to refuse reverse request", "command", req.Command)
		}

	default:
		return fmt.Errorf("unknown DAP message type %q", env.Type)
	}

	return nil
}

// trackThreads updates the stopped thread set from the typed form of an event.
// Events go-dap cannot decode are not thread related and are ignored here.
func (c *Client) trackThreads(payload []byte) {
	msg, err := dap.DecodeProtocolMessage(payload)
	if err != nil {
		return
	}

	switch e := msg.(type) {
	case *dap.StoppedEvent:
		c.threads.Add(e.Body.ThreadId)
	case *dap.ContinuedEvent:
		if e.Body.AllThreadsContinued {
			c.threads.Clear()
		} else {
			c.threads.Remove(e.Body.ThreadId)
		}
	case *dap.ThreadEvent:
		if e.Body.Reason == "exited" {
			c.threads.Remove(e.Body.ThreadId)
		}
	case *dap.TerminatedEvent, *dap.ExitedEvent:
		c.threads.Clear()
	}
}

func (c *Client) nextSeq() int {
	return int(c.seq.Add(1))
}

// Forward sends req under a fresh adapter sequence number and waits for the matching reply.
// req itself is not modified; the reply's RequestSeq is the adapter side number.
func (c *Client) Forward(ctx context.Context, req *Request) (*Response, error) {
	out := *req
	out.Type = TypeRequest
	out.Seq = c.nextSeq()

	ch, err := c.pending.add(out.Seq)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.log.V(2).Info("Adapter request", "command", out.Command, "seq", out.Seq, "arguments", string(out.Arguments))
	if err := c.transport.Send(&out); err != nil {
		c.pending.remove(out.Seq)
		return nil, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		c.log.V(2).Info("Adapter response", "command", res.resp.Command, "success", res.resp.Success, "body", string(res.resp.Body))
		return res.resp, nil
	case <-ctx.Done():
		c.pending.remove(out.Seq)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, out.Command)
		}
		return nil, ctx.Err()
	}
}

// Do builds a request from command and args and forwards it
func (c *Client) Do(ctx context.Context, command string, args any) (*Response, error) {
	req, err := NewRequest(command, args)
	if err != nil {
		return nil, err
	}
	return c.Forward(ctx, req)
}

// Evaluate runs an evaluate request and returns the typed body of a successful reply.
// A reply with success=false is reported as an error carrying the adapter message.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	resp, err := c.Do(ctx, "evaluate", dap.EvaluateArguments{
		Expression: expression,
		FrameId:    frameID,
		Context:    evalContext,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("evaluate %q failed: %s", expression, resp.Message)
	}

	var body dap.EvaluateResponseBody
	if err := resp.DecodeBody(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Close closes the transport and waits for the read loop to finish
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
