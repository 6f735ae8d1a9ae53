// Package bridge sits between a notebook frontend speaking DAP and an lldb-dap
// subprocess. It rewrites source identity and thread ids in both directions,
// answers the notebook specific commands itself and relays adapter events.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/ctagard/cellbridge/pkg/types"
)

// ExecutionEnvironment is the incremental executor the debugged code runs in
type ExecutionEnvironment interface {
	// ProcessID is the pid of the process executing cells; the adapter attaches to it
	ProcessID() int

	// ExecutionCounts returns the execution indices under which code was run
	ExecutionCounts(code string) []int

	// CodeForExecution returns the text executed at index
	CodeForExecution(index int) (string, bool)
}

// Dispatcher handles frontend traffic on the bound endpoints
type Dispatcher interface {
	// Dispatch handles one raw DAP request and returns the raw reply.
	// An error means the input was not a request at all; every request gets a reply.
	Dispatch(ctx context.Context, raw []byte) ([]byte, error)

	// Info describes the session for the header endpoint
	Info() types.SessionInfo
}

// Frontend is the messaging transport toward the notebook client
type Frontend interface {
	// Bind exposes the controller and header endpoints, routing them to d
	Bind(controller, header string, d Dispatcher) error

	// Unbind removes the endpoints installed by Bind
	Unbind(controller, header string) error

	// Publish delivers one raw DAP event to the client
	Publish(event json.RawMessage) error
}
