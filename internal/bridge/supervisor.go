package bridge

import (
	"context"
	"encoding/json"

	godap "github.com/google/go-dap"

	"github.com/ctagard/cellbridge/internal/adapters"
	"github.com/ctagard/cellbridge/internal/dap"
	debugerrors "github.com/ctagard/cellbridge/internal/errors"
	"github.com/ctagard/cellbridge/pkg/types"
)

// supervise watches the adapter process and connection until ctx ends.
// If either goes away first, the session is marked degraded and the
// frontend receives a terminated event.
func (s *Session) supervise(ctx context.Context, proc *adapters.Process, client *dap.Client) {
	defer s.wg.Done()

	var procDone <-chan struct{}
	if proc != nil {
		procDone = proc.Done()
	}

	var cause error
	select {
	case <-ctx.Done():
		return
	case <-procDone:
		cause = debugerrors.AdapterExited(s.adapter.Name(), proc.LogFile, proc.ExitErr())
		// Fail in-flight requests now rather than waiting for the socket to notice
		_ = client.Close()
	case <-client.Done():
		cause = client.Err()
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.status = types.SessionStatusDegraded
	s.lastErr = cause
	s.mu.Unlock()

	s.log.Error(cause, "Debug adapter went away", "id", s.id)
	s.publishTerminated()
}

func (s *Session) publishTerminated() {
	evt := godap.TerminatedEvent{
		Event: godap.Event{
			ProtocolMessage: godap.ProtocolMessage{Seq: int(s.seq.Add(1)), Type: dap.TypeEvent},
			Event:           "terminated",
		},
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		s.log.Error(err, "Failed to encode terminated event")
		return
	}
	if err := s.frontend.Publish(raw); err != nil {
		s.log.Error(err, "Failed to publish terminated event")
	}
}
