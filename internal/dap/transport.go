// Package dap implements the adapter side of the debug bridge: a Debug Adapter
// Protocol connection to the native debug adapter.
//
// This package provides:
//   - Transport: Content-Length framed message exchange over a byte stream
//   - Client: request/reply matching by sequence number, bounded waits and
//     event dispatch on a dedicated read goroutine
//   - ThreadSet: the set of threads the adapter reports as stopped, and the
//     reconciliation of frontend thread ids against it
//
// Messages are kept as raw JSON envelopes so that commands go-dap does not know
// about pass through untouched. Typed go-dap structs are used where the bridge
// needs to look inside a body.
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
)

// Transport handles framed communication with a DAP server
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	closed atomic.Bool
}

// DialTCP creates a transport connected to a TCP address
func DialTCP(ctx context.Context, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewTransport(conn), nil
}

// NewTransport wraps an established connection
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// WriteMessage frames and sends one JSON payload
func (t *Transport) WriteMessage(payload []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteBaseMessage(t.writer, payload); err != nil {
		return t.classify(fmt.Errorf("failed to write DAP message: %w", err))
	}

	if err := t.writer.Flush(); err != nil {
		return t.classify(fmt.Errorf("failed to flush DAP message: %w", err))
	}

	return nil
}

// Send marshals msg and writes it
func (t *Transport) Send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode DAP message: %w", err)
	}
	return t.WriteMessage(payload)
}

// ReadMessage blocks until one framed payload is available.
// Only a single goroutine may read at a time.
func (t *Transport) ReadMessage() ([]byte, error) {
	payload, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, t.classify(fmt.Errorf("failed to read DAP message: %w", err))
	}
	return payload, nil
}

// Close closes the transport. It is safe to call more than once.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// classify maps end-of-stream conditions onto ErrTransportClosed
func (t *Transport) classify(err error) error {
	if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return err
}
