package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cellbridge/pkg/types"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	seen []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, raw []byte) ([]byte, error) {
	d.mu.Lock()
	d.seen = append(d.seen, string(raw))
	d.mu.Unlock()

	var req struct {
		Seq     int    `json:"seq"`
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.Command == "" {
		return nil, errors.New("invalid DAP request")
	}
	return json.Marshal(map[string]any{
		"seq": 1, "type": "response", "request_seq": req.Seq, "success": true, "command": req.Command,
	})
}

func (d *fakeDispatcher) Info() types.SessionInfo {
	return types.SessionInfo{SessionID: "s-1", Status: types.SessionStatusRunning, StoppedThreads: []int{}}
}

type fakeLifecycle struct {
	startErr error
	started  bool
	stopped  bool
}

func (l *fakeLifecycle) Start(context.Context) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.started = true
	return nil
}

func (l *fakeLifecycle) Stop() error {
	l.stopped = true
	return nil
}

func (l *fakeLifecycle) Info() types.SessionInfo {
	status := types.SessionStatusStopped
	if l.started && !l.stopped {
		status = types.SessionStatusRunning
	}
	return types.SessionInfo{SessionID: "s-1", Status: status}
}

// fakeClientSession receives notifications sent to all clients
type fakeClientSession struct {
	ch chan mcp.JSONRPCNotification
}

func (f *fakeClientSession) Initialize()       {}
func (f *fakeClientSession) Initialized() bool { return true }
func (f *fakeClientSession) SessionID() string { return "test-client" }
func (f *fakeClientSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return f.ch
}

type rpc struct {
	t   *testing.T
	srv *Server
	id  int
}

func (r *rpc) call(method string, params any) map[string]any {
	r.t.Helper()
	r.id++

	msg := map[string]any{"jsonrpc": "2.0", "id": r.id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	raw, err := json.Marshal(msg)
	require.NoError(r.t, err)

	reply := r.srv.MCPServer().HandleMessage(context.Background(), raw)
	data, err := json.Marshal(reply)
	require.NoError(r.t, err)

	var out map[string]any
	require.NoError(r.t, json.Unmarshal(data, &out))
	require.Nil(r.t, out["error"], "unexpected JSON-RPC error")
	return out["result"].(map[string]any)
}

func (r *rpc) toolNames() map[string]bool {
	r.t.Helper()
	names := make(map[string]bool)
	for _, tool := range r.call("tools/list", nil)["tools"].([]any) {
		names[tool.(map[string]any)["name"].(string)] = true
	}
	return names
}

func (r *rpc) callTool(name string, args map[string]any) (string, bool) {
	r.t.Helper()
	result := r.call("tools/call", map[string]any{"name": name, "arguments": args})
	content := result["content"].([]any)
	require.NotEmpty(r.t, content)
	text := content[0].(map[string]any)["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

func newRPC(t *testing.T) *rpc {
	r := &rpc{t: t, srv: NewServer(logr.Discard())}
	r.call("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "1.0.0"},
	})
	return r
}

func TestServer_BindAndUnbindTools(t *testing.T) {
	r := newRPC(t)
	d := &fakeDispatcher{}

	assert.False(t, r.toolNames()["debugger"])

	require.NoError(t, r.srv.Bind("debugger", "debugger_header", d))
	names := r.toolNames()
	assert.True(t, names["debugger"])
	assert.True(t, names["debugger_header"])
	assert.True(t, r.srv.IsBound("debugger"))

	assert.Error(t, r.srv.Bind("debugger", "other_header", d), "endpoint names are exclusive")

	require.NoError(t, r.srv.Unbind("debugger", "debugger_header"))
	names = r.toolNames()
	assert.False(t, names["debugger"])
	assert.False(t, names["debugger_header"])
	assert.False(t, r.srv.IsBound("debugger"))
}

func TestServer_BindRejectsBadNames(t *testing.T) {
	srv := NewServer(logr.Discard())
	assert.Error(t, srv.Bind("", "h", &fakeDispatcher{}))
	assert.Error(t, srv.Bind("same", "same", &fakeDispatcher{}))
}

func TestServer_ControllerToolDispatches(t *testing.T) {
	r := newRPC(t)
	d := &fakeDispatcher{}
	require.NoError(t, r.srv.Bind("debugger", "debugger_header", d))

	text, isError := r.callTool("debugger", map[string]any{
		"request": `{"seq":5,"type":"request","command":"threads"}`,
	})
	require.False(t, isError)

	var reply map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &reply))
	assert.Equal(t, float64(5), reply["request_seq"])
	assert.Equal(t, "threads", reply["command"])

	_, isError = r.callTool("debugger", map[string]any{"request": `{"seq":6}`})
	assert.True(t, isError)

	_, isError = r.callTool("debugger", map[string]any{})
	assert.True(t, isError)
}

func TestServer_HeaderToolDescribesSession(t *testing.T) {
	r := newRPC(t)
	require.NoError(t, r.srv.Bind("debugger", "debugger_header", &fakeDispatcher{}))

	text, isError := r.callTool("debugger_header", map[string]any{})
	require.False(t, isError)

	var info types.SessionInfo
	require.NoError(t, json.Unmarshal([]byte(text), &info))
	assert.Equal(t, "s-1", info.SessionID)
	assert.Equal(t, types.SessionStatusRunning, info.Status)
}

func TestServer_LifecycleTools(t *testing.T) {
	r := newRPC(t)
	l := &fakeLifecycle{}
	r.srv.RegisterLifecycle(l)

	names := r.toolNames()
	assert.True(t, names["debug_start"])
	assert.True(t, names["debug_stop"])

	text, isError := r.callTool("debug_start", map[string]any{})
	require.False(t, isError)
	assert.True(t, l.started)
	assert.Contains(t, text, `"running"`)

	_, isError = r.callTool("debug_stop", map[string]any{})
	require.False(t, isError)
	assert.True(t, l.stopped)
}

func TestServer_LifecycleStartFailure(t *testing.T) {
	r := newRPC(t)
	r.srv.RegisterLifecycle(&fakeLifecycle{startErr: errors.New("no free port")})

	text, isError := r.callTool("debug_start", map[string]any{})
	assert.True(t, isError)
	assert.Contains(t, text, "no free port")
}

func TestServer_PublishNotifiesClients(t *testing.T) {
	srv := NewServer(logr.Discard())
	client := &fakeClientSession{ch: make(chan mcp.JSONRPCNotification, 16)}
	require.NoError(t, srv.MCPServer().RegisterSession(context.Background(), client))
	defer srv.MCPServer().UnregisterSession(context.Background(), client.SessionID())

	require.NoError(t, srv.Publish(json.RawMessage(`{"seq":3,"type":"event","event":"stopped","body":{"threadId":7}}`)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-client.ch:
			if n.Method != EventNotification {
				continue
			}
			data, err := json.Marshal(n.Params)
			require.NoError(t, err)
			var params struct {
				Event json.RawMessage `json:"event"`
			}
			require.NoError(t, json.Unmarshal(data, &params))
			assert.JSONEq(t, `{"seq":3,"type":"event","event":"stopped","body":{"threadId":7}}`, string(params.Event))
			return
		case <-deadline:
			t.Fatal("no debug/event notification delivered")
		}
	}
}

func TestServer_PublishRejectsInvalidJSON(t *testing.T) {
	srv := NewServer(logr.Discard())
	assert.Error(t, srv.Publish(json.RawMessage(`{"broken"`)))
}
