package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/cellbridge/internal/bridge"
)

// Lifecycle Tools

func (s *Server) registerDebugStart(l Lifecycle) {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Start the debug session: spawns lldb-dap on a free port, connects to it and exposes the debugger tools. Attach with a DAP 'attach' request sent through the debugger tool."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart(l))
}

func (s *Server) registerDebugStop(l Lifecycle) {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Stop the debug session, removing the debugger tools and terminating lldb-dap."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop(l))
}

// Session Endpoints

func (s *Server) registerController(name string, d bridge.Dispatcher) {
	tool := mcp.NewTool(name,
		mcp.WithDescription("Send one Debug Adapter Protocol request to the debugger and return its reply. Cell sources are addressed by the path returned from dumpCell. Notebook commands: dumpCell, debugInfo, richInspectVariables, copyToGlobals, inspectVariables."),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("The DAP request as JSON, e.g. {\"seq\":1,\"type\":\"request\",\"command\":\"stackTrace\",\"arguments\":{\"threadId\":1}}"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleController(d))
}

func (s *Server) registerHeader(name string, d bridge.Dispatcher) {
	tool := mcp.NewTool(name,
		mcp.WithDescription("Describe the running debug session: status, adapter address and log, target pid and stopped threads."),
	)
	s.mcpServer.AddTool(tool, s.handleHeader(d))
}
