package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/cellbridge/internal/bridge"
	"github.com/ctagard/cellbridge/internal/errors"
)

// Lifecycle Handlers

func (s *Server) handleDebugStart(l Lifecycle) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := l.Start(ctx); err != nil {
			return mcp.NewToolResultError(errors.FromError(err).Error()), nil
		}
		return jsonResult(l.Info())
	}
}

func (s *Server) handleDebugStop(l Lifecycle) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := l.Stop(); err != nil {
			return mcp.NewToolResultError(errors.FromError(err).Error()), nil
		}
		return jsonResult(l.Info())
	}
}

// Session Endpoint Handlers

func (s *Server) handleController(d bridge.Dispatcher) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString("request")
		if err != nil {
			return mcp.NewToolResultError(errors.MissingParameter("request",
				"Pass the DAP request as a JSON string, e.g. {\"seq\":1,\"type\":\"request\",\"command\":\"threads\"}.").Error()), nil
		}

		reply, err := d.Dispatch(ctx, []byte(raw))
		if err != nil {
			return mcp.NewToolResultError(errors.InvalidParameter("request", raw, "a DAP request object with a command").WithCause(err).Error()), nil
		}
		return mcp.NewToolResultText(string(reply)), nil
	}
}

func (s *Server) handleHeader(d bridge.Dispatcher) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(d.Info())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
