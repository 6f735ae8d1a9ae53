// Package types defines shared data types used across the cellbridge debug bridge.
//
// This package provides type definitions for:
//   - SessionStatus: debug session states (stopped, starting, running, degraded)
//   - VariableNode: a variable and its expanded container elements
//   - DebuggerInfo: the debugInfo reply body advertised to the frontend
//   - SessionInfo: the status reported on the controller header endpoint
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

import "github.com/google/go-dap"

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusStopped  SessionStatus = "stopped"
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusRunning  SessionStatus = "running"
	// SessionStatusDegraded means the adapter went away while the session was running
	SessionStatusDegraded SessionStatus = "degraded"
)

// VariableNode is one variable in an introspection tree.
// Nodes are built per request and never cached, since live values change between stops.
type VariableNode struct {
	Name        string          `json:"name"`
	Value       string          `json:"value"`
	Type        string          `json:"valueType"`
	IsContainer bool            `json:"isContainer"`
	Size        int             `json:"size,omitempty"`
	Index       int             `json:"index"`
	HasChildren bool            `json:"hasChildren"`
	Children    []*VariableNode `json:"children,omitempty"`
}

// Leaf reports whether the node cannot be expanded
func (n *VariableNode) Leaf() bool {
	return !n.IsContainer
}

// BreakpointList is the set of breakpoints stored for one persistent source file
type BreakpointList struct {
	Source      string                 `json:"source"`
	Breakpoints []dap.SourceBreakpoint `json:"breakpoints"`
}

// DebuggerInfo is the body of a debugInfo reply
type DebuggerInfo struct {
	IsStarted      bool             `json:"isStarted"`
	HashMethod     string           `json:"hashMethod"`
	HashSeed       uint32           `json:"hashSeed"`
	TmpFilePrefix  string           `json:"tmpFilePrefix"`
	TmpFileSuffix  string           `json:"tmpFileSuffix"`
	Breakpoints    []BreakpointList `json:"breakpoints"`
	StoppedThreads []int            `json:"stoppedThreads"`
	RichRendering  bool             `json:"richRendering"`
	ExceptionPaths []string         `json:"exceptionPaths"`
	CopyToGlobals  bool             `json:"copyToGlobals"`
	SessionID      string           `json:"sessionId,omitempty"`
}

// SessionInfo represents information about the debug session
type SessionInfo struct {
	SessionID      string        `json:"sessionId"`
	Status         SessionStatus `json:"status"`
	Adapter        string        `json:"adapter,omitempty"`
	AdapterAddress string        `json:"adapterAddress,omitempty"`
	AdapterPID     int           `json:"adapterPid,omitempty"`
	AdapterLog     string        `json:"adapterLog,omitempty"`
	TargetPID      int           `json:"targetPid,omitempty"`
	StoppedThreads []int         `json:"stoppedThreads"`
	LastError      string        `json:"lastError,omitempty"`
}
