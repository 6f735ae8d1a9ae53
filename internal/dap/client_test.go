package dap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	internaldap "github.com/ctagard/cellbridge/internal/dap"
	"github.com/ctagard/cellbridge/internal/dap/daptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newClient(t *testing.T, opts internaldap.ClientOptions) (*daptest.Adapter, *internaldap.Client) {
	t.Helper()
	adapter, transport := daptest.New(t)
	client := internaldap.NewClient(transport, opts)
	t.Cleanup(func() { _ = client.Close() })
	return adapter, client
}

func TestForward_MatchesReplyBySequence(t *testing.T) {
	adapter, client := newClient(t, internaldap.ClientOptions{})

	adapter.Handle("threads", func(req *internaldap.Request) *internaldap.Response {
		// An event interleaved before the reply must not be mistaken for it
		adapter.SendEvent("output", map[string]string{"output": "hello"})
		return internaldap.NewResponse(req, dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: 7, Name: "main"}}})
	})

	req := &internaldap.Request{Seq: 99, Type: "request", Command: "threads"}
	resp, err := client.Forward(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "threads", resp.Command)
	assert.NotEqual(t, 99, resp.RequestSeq, "adapter side numbering is independent of the caller's")
	assert.Equal(t, 99, req.Seq, "Forward must not mutate the caller's request")

	var body dap.ThreadsResponseBody
	require.NoError(t, resp.DecodeBody(&body))
	require.Len(t, body.Threads, 1)
	assert.Equal(t, 7, body.Threads[0].Id)
}

func TestForward_ConcurrentCallers(t *testing.T) {
	adapter, client := newClient(t, internaldap.ClientOptions{})
	adapter.Handle("evaluate", func(req *internaldap.Request) *internaldap.Response {
		var args dap.EvaluateArguments
		_ = req.DecodeArguments(&args)
		return internaldap.NewResponse(req, dap.EvaluateResponseBody{Result: args.Expression})
	})

	var wg sync.WaitGroup
	for _, expr := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := client.Evaluate(context.Background(), expr, 0, "watch")
			if assert.NoError(t, err) {
				assert.Equal(t, expr, body.Result)
			}
		}()
	}
	wg.Wait()
}

func TestForward_Timeout(t *testing.T) {
	adapter, client := newClient(t, internaldap.ClientOptions{RequestTimeout: 50 * time.Millisecond})
	adapter.Handle("stackTrace", func(req *internaldap.Request) *internaldap.Response { return nil })

	_, err := client.Do(context.Background(), "stackTrace", dap.StackTraceArguments{ThreadId: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, internaldap.ErrRequestTimeout)
}

func TestForward_TransportClosed(t *testing.T) {
	adapter, client := newClient(t, internaldap.ClientOptions{})

	started := make(chan struct{})
	adapter.Handle("continue", func(req *internaldap.Request) *internaldap.Response {
		close(started)
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Do(context.Background(), "continue", dap.ContinueArguments{ThreadId: 1})
		errCh <- err
	}()

	<-started
	adapter.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, internaldap.ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was not failed when the adapter went away")
	}

	<-client.Done()
	assert.ErrorIs(t, client.Err(), internaldap.ErrTransportClosed)

	_, err := client.Do(context.Background(), "threads", nil)
	assert.ErrorIs(t, err, internaldap.ErrTransportClosed)
}

func TestEvaluate_FailureReply(t *testing.T) {
	adapter, client := newClient(t, internaldap.ClientOptions{})
	adapter.Handle("evaluate", func(req *internaldap.Request) *internaldap.Response {
		return internaldap.NewErrorResponse(req, "use of undeclared identifier 'nope'")
	})

	_, err := client.Evaluate(context.Background(), "nope", 0, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared identifier")
}

func TestEvents_TrackStoppedThreads(t *testing.T) {
	events := make(chan *internaldap.Event, 8)
	adapter, client := newClient(t, internaldap.ClientOptions{
		OnEvent: func(e *internaldap.Event) { events <- e },
	})

	adapter.SendEvent("stopped", dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 7})
	assert.Equal(t, "stopped", (<-events).Event)
	adapter.SendEvent("stopped", dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 9})
	<-events
	assert.Equal(t, []int{7, 9}, client.Threads().IDs())

	adapter.SendEvent("continued", dap.ContinuedEventBody{ThreadId: 7})
	<-events
	assert.Equal(t, []int{9}, client.Threads().IDs())

	adapter.SendEvent("continued", dap.ContinuedEventBody{ThreadId: 9, AllThreadsContinued: true})
	<-events
	assert.Equal(t, 0, client.Threads().Len())
}

func TestEvents_RelayUnknownEventsVerbatim(t *testing.T) {
	events := make(chan *internaldap.Event, 1)
	adapter, _ := newClient(t, internaldap.ClientOptions{
		OnEvent: func(e *internaldap.Event) { events <- e },
	})

	adapter.SendEvent("lldb-dap.custom", map[string]int{"answer": 42})

	select {
	case e := <-events:
		assert.Equal(t, "lldb-dap.custom", e.Event)
		assert.JSONEq(t, `{"answer":42}`, string(e.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}
