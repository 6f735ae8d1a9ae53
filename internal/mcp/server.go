// Package mcp provides the Model Context Protocol (MCP) frontend of the bridge.
//
// The notebook client talks to the bridge through MCP tools over stdio:
//
// Lifecycle (always available):
//   - debug_start: Start the debug session (spawns lldb-dap)
//   - debug_stop: Stop the debug session
//
// Session endpoints (while a session is running):
//   - debugger: Send one raw DAP request, returns the raw DAP reply
//   - debugger_header: Describe the running session
//
// Adapter events are delivered as "debug/event" notifications.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/cellbridge/internal/bridge"
	"github.com/ctagard/cellbridge/internal/version"
	"github.com/ctagard/cellbridge/pkg/types"
)

// EventNotification is the method of the notification carrying adapter events
const EventNotification = "debug/event"

// Lifecycle starts and stops the debug session behind the lifecycle tools
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Info() types.SessionInfo
}

// Server wraps the MCP server and implements bridge.Frontend
type Server struct {
	mcpServer *server.MCPServer
	log       logr.Logger

	mu    sync.RWMutex
	bound map[string]bridge.Dispatcher
}

var _ bridge.Frontend = (*Server)(nil)

// NewServer creates a new MCP frontend
func NewServer(log logr.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"cellbridge",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcpServer: mcpServer,
		log:       log,
		bound:     make(map[string]bridge.Dispatcher),
	}
}

// RegisterLifecycle installs the debug_start and debug_stop tools
func (s *Server) RegisterLifecycle(l Lifecycle) {
	s.registerDebugStart(l)
	s.registerDebugStop(l)
}

// Bind implements bridge.Frontend
func (s *Server) Bind(controller, header string, d bridge.Dispatcher) error {
	if controller == "" || header == "" || controller == header {
		return fmt.Errorf("invalid endpoint names %q and %q", controller, header)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{controller, header} {
		if _, taken := s.bound[name]; taken {
			return fmt.Errorf("endpoint %q is already bound", name)
		}
	}
	s.bound[controller] = d
	s.bound[header] = d

	s.registerController(controller, d)
	s.registerHeader(header, d)

	s.log.V(1).Info("Debugger endpoints bound", "controller", controller, "header", header)
	return nil
}

// Unbind implements bridge.Frontend
func (s *Server) Unbind(controller, header string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bound, controller)
	delete(s.bound, header)
	s.mcpServer.DeleteTools(controller, header)

	s.log.V(1).Info("Debugger endpoints unbound", "controller", controller, "header", header)
	return nil
}

// Publish implements bridge.Frontend
func (s *Server) Publish(event json.RawMessage) error {
	if !json.Valid(event) {
		return fmt.Errorf("event is not valid JSON")
	}
	s.mcpServer.SendNotificationToAllClients(EventNotification, map[string]any{
		"event": event,
	})
	return nil
}

// IsBound reports whether name is currently served
func (s *Server) IsBound(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bound[name]
	return ok
}

// Serve runs the server on stdin and stdout until ctx is cancelled or stdin is closed
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the stdio transport over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
