// Package adapters manages the native debug adapter subprocess.
//
// The Adapter interface is what the bridge needs from a debug adapter: start it
// on a free port and build its attach arguments. LLDBAdapter implements it for
// lldb-dap, which debugs the JIT compiled code of the execution environment.
// Connect dials the started adapter with exponential backoff.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/ctagard/cellbridge/internal/dap"
	debugerrors "github.com/ctagard/cellbridge/internal/errors"
)

// Adapter defines what the bridge needs from a native debug adapter
type Adapter interface {
	// Name identifies the adapter in logs and debugInfo replies
	Name() string

	// Start spawns the adapter listening on a free port and verifies it is alive
	Start(ctx context.Context) (*Process, error)

	// BuildAttachArgs builds the attach arguments for the process running the compiled code
	BuildAttachArgs(pid int) any
}

// FindFreePort returns the first port in [start, end] that can be bound on host,
// probing at most maxAttempts ports.
func FindFreePort(host string, start, end, maxAttempts int) (int, error) {
	attempts := 0
	for port := start; port <= end && attempts < maxAttempts; port++ {
		attempts++
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = listener.Close()
		return port, nil
	}
	return 0, debugerrors.NoFreePort(host, start, end).WithDetails("attempts", attempts)
}

// Connect dials the adapter at proc's address, retrying with exponential backoff
// until timeout. It gives up early if the process exits.
func Connect(ctx context.Context, proc *Process, timeout time.Duration, log logr.Logger) (*dap.Transport, error) {
	address := proc.Address()
	var lastErr error

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.1),
		backoff.WithMaxElapsedTime(timeout),
	)

	transport, err := backoff.RetryNotifyWithData(
		func() (*dap.Transport, error) {
			if !proc.Alive() {
				return nil, backoff.Permanent(debugerrors.AdapterExited(address, proc.LogFile, proc.ExitErr()))
			}
			return dap.DialTCP(ctx, address)
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastErr = err
			log.V(1).Info("Debug adapter not accepting connections yet", "address", address, "retryIn", d)
		},
	)
	if err != nil {
		var de *debugerrors.DebugError
		if errors.As(err, &de) {
			return nil, de
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, debugerrors.AdapterConnectFailed(address, fmt.Errorf("%w (last attempt: %v)", err, lastErr))
	}

	return transport, nil
}
