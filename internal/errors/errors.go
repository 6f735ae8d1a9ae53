// Package errors provides structured error types for the cellbridge debug bridge.
// Every error carries a machine-readable code and a hint that is surfaced to the
// frontend in failure replies, so a notebook user can tell what to do next.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Startup errors
	CodeNoFreePort           ErrorCode = "NO_FREE_PORT"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterExited        ErrorCode = "ADAPTER_EXITED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// Transport errors
	CodeDebuggerUnavailable ErrorCode = "DEBUGGER_UNAVAILABLE"
	CodeRequestTimeout      ErrorCode = "REQUEST_TIMEOUT"

	// Request errors
	CodeMissingParameter      ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter      ErrorCode = "INVALID_PARAMETER"
	CodeSourceUnavailable     ErrorCode = "SOURCE_UNAVAILABLE"
	CodeCapabilityUnsupported ErrorCode = "CAPABILITY_UNSUPPORTED"

	// Configuration errors
	CodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that includes helpful information
// for the frontend user to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the port range, the missing field)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Startup Errors ---

// NoFreePort creates an error when no port in the configured range can be bound
func NoFreePort(host string, start, end int) *DebugError {
	return &DebugError{
		Code:    CodeNoFreePort,
		Message: fmt.Sprintf("no free port for the debug adapter on %s in range %d..%d", host, start, end),
		Hint:    "Close other debugging sessions or widen adapter.portRangeStart/portRangeEnd in the configuration, then restart the debugger.",
		Details: map[string]interface{}{
			"host":      host,
			"rangeFrom": start,
			"rangeTo":   end,
		},
	}
}

// AdapterSpawnFailed creates an error when the adapter binary cannot be started
func AdapterSpawnFailed(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to start debug adapter %s: %v", path, err),
		Hint:    "Make sure lldb-dap is installed and set adapter.path in the configuration if it is not on PATH.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// AdapterExited creates an error when the adapter process died right after spawning
func AdapterExited(path, logFile string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterExited,
		Message: fmt.Sprintf("debug adapter %s exited prematurely", path),
		Hint:    fmt.Sprintf("Check the adapter log at %s for the reason.", logFile),
		Cause:   err,
		Details: map[string]interface{}{
			"path":    path,
			"logFile": logFile,
		},
	}
}

// AdapterConnectFailed creates an error when connection to the adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The adapter may have failed to start listening. Check the adapter log and increase connectTimeout if the machine is slow.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- Transport Errors ---

// DebuggerUnavailable creates an error for requests that cannot reach the adapter
func DebuggerUnavailable(err error) *DebugError {
	msg := "debugger unavailable"
	if err != nil {
		msg = fmt.Sprintf("debugger unavailable: %v", err)
	}
	return &DebugError{
		Code:    CodeDebuggerUnavailable,
		Message: msg,
		Hint:    "The debug adapter is not running. Restart the debugger from the notebook.",
		Cause:   err,
	}
}

// RequestTimeout creates an error for requests the adapter did not answer in time
func RequestTimeout(command string, timeout time.Duration) *DebugError {
	return &DebugError{
		Code:    CodeRequestTimeout,
		Message: fmt.Sprintf("%s request timed out after %s", command, timeout),
		Hint:    "The debug adapter may be hung. Interrupt the kernel or restart the debugger.",
		Details: map[string]interface{}{
			"command":        command,
			"timeoutSeconds": timeout.Seconds(),
		},
	}
}

// --- Request Errors ---

// MissingParameter creates an error for a required field absent from a request
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("missing required parameter '%s'", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for a field with an unusable value
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected %s.", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
		},
	}
}

// SourceUnavailable creates an error when a source file cannot be read
func SourceUnavailable(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeSourceUnavailable,
		Message: "source unavailable",
		Hint:    "Run the cell again or dump it with dumpCell so its source file is written.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// CapabilityUnsupported creates an error for requests the adapter cannot serve
func CapabilityUnsupported(command, requirement string) *DebugError {
	return &DebugError{
		Code:    CodeCapabilityUnsupported,
		Message: fmt.Sprintf("%s is not supported: %s", command, requirement),
		Hint:    "Upgrade the debug adapter or enable the capability in the configuration.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// ConfigInvalid creates an error for a configuration the bridge cannot use
func ConfigInvalid(reason string, err error) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
		Hint:    "Fix the configuration file passed with --config.",
		Cause:   err,
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

// IsCode reports whether err carries the given code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	var de *DebugError
	return stderrors.As(err, &de) && de.Code == code
}
