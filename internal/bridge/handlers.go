package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"

	"github.com/ctagard/cellbridge/internal/adapters"
	"github.com/ctagard/cellbridge/internal/config"
	"github.com/ctagard/cellbridge/internal/dap"
	debugerrors "github.com/ctagard/cellbridge/internal/errors"
	"github.com/ctagard/cellbridge/internal/inspect"
	"github.com/ctagard/cellbridge/internal/sources"
	"github.com/ctagard/cellbridge/pkg/types"
)

// HashMethod names the content hash advertised in debugInfo replies
const HashMethod = "Murmur3"

type handlerFunc func(ctx context.Context, req *dap.Request) *dap.Response

// translator rewrites frontend requests for the adapter and the replies back.
// One translator lives as long as one adapter connection.
type translator struct {
	client    *dap.Client
	mapper    *sources.Mapper
	env       ExecutionEnvironment
	adapter   adapters.Adapter
	builder   *inspect.Builder
	cfg       *config.Config
	sessionID string
	log       logr.Logger
	now       func() time.Time

	handlers map[string]handlerFunc

	capMu                 sync.Mutex
	supportsSetExpression *bool
}

func newTranslator(client *dap.Client, mapper *sources.Mapper, env ExecutionEnvironment, adapter adapters.Adapter, cfg *config.Config, sessionID string, log logr.Logger) *translator {
	t := &translator{
		client:    client,
		mapper:    mapper,
		env:       env,
		adapter:   adapter,
		builder:   inspect.NewBuilder(client, client.Threads(), cfg.Inspect.MaxElements, log),
		cfg:       cfg,
		sessionID: sessionID,
		log:       log,
		now:       time.Now,
	}

	t.handlers = map[string]handlerFunc{
		"initialize":           t.initialize,
		"attach":               t.attach,
		"setBreakpoints":       t.setBreakpoints,
		"stackTrace":           t.stackTrace,
		"source":               t.source,
		"dumpCell":             t.dumpCell,
		"debugInfo":            t.debugInfo,
		"copyToGlobals":        t.copyToGlobals,
		"inspectVariables":     t.inspectVariables,
		"richInspectVariables": t.richInspectVariables,
		"disconnect":           t.disconnect,
	}

	return t
}

// handle answers req. The reply carries the frontend's sequence number in request_seq.
func (t *translator) handle(ctx context.Context, req *dap.Request) *dap.Response {
	h, ok := t.handlers[req.Command]
	if !ok {
		h = t.forward
	}

	resp := h(ctx, req)
	resp.Type = dap.TypeResponse
	resp.RequestSeq = req.Seq
	resp.Command = req.Command
	return resp
}

// forward sends req unchanged and returns the adapter's reply
func (t *translator) forward(ctx context.Context, req *dap.Request) *dap.Response {
	resp, err := t.client.Forward(ctx, req)
	if err != nil {
		return t.fail(req, err)
	}
	return resp
}

// fail turns err into a failure reply for req
func (t *translator) fail(req *dap.Request, err error) *dap.Response {
	var de *debugerrors.DebugError
	switch {
	case errors.As(err, &de):
	case errors.Is(err, dap.ErrRequestTimeout):
		de = debugerrors.RequestTimeout(req.Command, time.Duration(t.cfg.RequestTimeout))
	case errors.Is(err, dap.ErrTransportClosed):
		de = debugerrors.DebuggerUnavailable(nil).WithCause(err)
	default:
		de = debugerrors.FromError(err)
	}

	if de.Cause != nil {
		t.log.V(1).Info("Request failed", "command", req.Command, "code", string(de.Code), "cause", de.Cause.Error())
	}

	vars := map[string]string{"code": string(de.Code)}
	if de.Hint != "" {
		vars["hint"] = de.Hint
	}
	return dap.NewFailureResponse(req, de.Message, godap.ErrorResponseBody{
		Error: &godap.ErrorMessage{Format: de.Message, Variables: vars, ShowUser: true},
	})
}

// withArguments returns a copy of req carrying args
func withArguments(req *dap.Request, args any) (*dap.Request, error) {
	out, err := dap.NewRequest(req.Command, args)
	if err != nil {
		return nil, err
	}
	out.Seq = req.Seq
	return out, nil
}

func (t *translator) initialize(ctx context.Context, req *dap.Request) *dap.Response {
	resp := t.forward(ctx, req)
	if !resp.Success || len(resp.Body) == 0 {
		return resp
	}

	var caps struct {
		SupportsSetExpression *bool `json:"supportsSetExpression"`
	}
	if err := json.Unmarshal(resp.Body, &caps); err != nil {
		t.log.V(1).Info("Could not read adapter capabilities", "reason", err.Error())
		return resp
	}

	t.capMu.Lock()
	t.supportsSetExpression = caps.SupportsSetExpression
	t.capMu.Unlock()
	return resp
}

func (t *translator) attach(ctx context.Context, req *dap.Request) *dap.Response {
	pid := t.env.ProcessID()
	out, err := withArguments(req, t.adapter.BuildAttachArgs(pid))
	if err != nil {
		return t.fail(req, err)
	}

	t.log.Info("Attaching to execution environment", "pid", pid)
	return t.forward(ctx, out)
}

func (t *translator) setBreakpoints(ctx context.Context, req *dap.Request) *dap.Response {
	var args godap.SetBreakpointsArguments
	if err := req.DecodeArguments(&args); err != nil {
		return t.fail(req, debugerrors.InvalidParameter("arguments", string(req.Arguments), "setBreakpoints arguments").WithCause(err))
	}
	path := args.Source.Path
	if path == "" {
		return t.fail(req, debugerrors.MissingParameter("source.path", "Breakpoints are set on the file returned by dumpCell."))
	}

	t.mapper.SetBreakpoints(path, args.Breakpoints)

	// A cell that never ran has no compilation unit yet; the adapter reports those breakpoints unverified
	if name, ok := t.mapper.EphemeralFor(path); ok {
		args.Source.Path = name
	} else {
		t.log.V(1).Info("No compilation unit recorded for source", "path", path)
	}

	out, err := withArguments(req, args)
	if err != nil {
		return t.fail(req, err)
	}
	resp := t.forward(ctx, out)
	if !resp.Success || len(resp.Body) == 0 {
		return resp
	}

	var body godap.SetBreakpointsResponseBody
	if err := resp.DecodeBody(&body); err != nil {
		t.log.V(1).Info("Passing through unreadable setBreakpoints reply", "reason", err.Error())
		return resp
	}
	for i := range body.Breakpoints {
		src := body.Breakpoints[i].Source
		if src == nil || !sources.IsEphemeral(src.Path) {
			continue
		}
		if persistent, ok := t.mapper.Resolve(src.Path); ok {
			src.Path = persistent
		}
	}
	if err := resp.SetBody(body); err != nil {
		return t.fail(req, err)
	}
	return resp
}

func (t *translator) stackTrace(ctx context.Context, req *dap.Request) *dap.Response {
	var args godap.StackTraceArguments
	if err := req.DecodeArguments(&args); err != nil {
		return t.fail(req, debugerrors.InvalidParameter("arguments", string(req.Arguments), "stackTrace arguments").WithCause(err))
	}

	threadID, substituted := t.client.Threads().Reconcile(args.ThreadId)
	if substituted {
		t.log.Info("Requested thread is not stopped, using first stopped thread", "requested", args.ThreadId, "using", threadID)
	}
	args.ThreadId = threadID

	out, err := withArguments(req, args)
	if err != nil {
		return t.fail(req, err)
	}
	resp := t.forward(ctx, out)
	if !resp.Success || len(resp.Body) == 0 {
		return resp
	}

	var body godap.StackTraceResponseBody
	if err := resp.DecodeBody(&body); err != nil {
		t.log.V(1).Info("Passing through unreadable stackTrace reply", "reason", err.Error())
		return resp
	}

	frames := make([]godap.StackFrame, 0, len(body.StackFrames))
	for _, frame := range body.StackFrames {
		if frame.Source == nil || !sources.IsEphemeral(frame.Source.Name) {
			continue
		}
		path, ok := t.mapper.Resolve(frame.Source.Name)
		if !ok {
			t.log.V(1).Info("Dropping frame with unresolvable source", "name", frame.Source.Name)
			continue
		}
		if runtime.GOOS == "windows" {
			path = strings.ReplaceAll(path, `\`, "/")
		}
		frame.Source.Path = path
		frame.Source.Name = filepath.Base(path)
		frames = append(frames, frame)
	}
	body.StackFrames = frames

	if err := resp.SetBody(body); err != nil {
		return t.fail(req, err)
	}
	return resp
}

func (t *translator) source(_ context.Context, req *dap.Request) *dap.Response {
	var args godap.SourceArguments
	if len(req.Arguments) > 0 {
		if err := req.DecodeArguments(&args); err != nil {
			return t.fail(req, debugerrors.InvalidParameter("arguments", string(req.Arguments), "a source object with a path").WithCause(err))
		}
	}

	path := ""
	if args.Source != nil {
		path = args.Source.Path
	}
	if path == "" {
		return t.fail(req, debugerrors.SourceUnavailable(path, nil))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return t.fail(req, debugerrors.SourceUnavailable(path, err))
	}
	return dap.NewResponse(req, godap.SourceResponseBody{Content: string(content)})
}

// DumpCellArguments are the arguments of a dumpCell request
type DumpCellArguments struct {
	Code *string `json:"code"`
}

// DumpCellResponseBody is the body of a dumpCell reply
type DumpCellResponseBody struct {
	SourcePath string `json:"sourcePath"`
}

func (t *translator) dumpCell(_ context.Context, req *dap.Request) *dap.Response {
	var args DumpCellArguments
	if err := req.DecodeArguments(&args); err != nil || args.Code == nil {
		return t.fail(req, debugerrors.MissingParameter("code", "dumpCell needs the cell text to write."))
	}

	path, err := t.mapper.Materialize(*args.Code)
	if err != nil {
		return t.fail(req, err)
	}
	return dap.NewResponse(req, DumpCellResponseBody{SourcePath: path})
}

func (t *translator) debugInfo(_ context.Context, req *dap.Request) *dap.Response {
	all := t.mapper.AllBreakpoints()
	paths := make([]string, 0, len(all))
	for path := range all {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	bps := make([]types.BreakpointList, 0, len(paths))
	for _, path := range paths {
		bps = append(bps, types.BreakpointList{Source: path, Breakpoints: all[path]})
	}

	stopped := t.client.Threads().IDs()
	if stopped == nil {
		stopped = []int{}
	}

	return dap.NewResponse(req, types.DebuggerInfo{
		IsStarted:      true,
		HashMethod:     HashMethod,
		HashSeed:       t.cfg.Sources.HashSeed,
		TmpFilePrefix:  filepath.Join(t.mapper.Dir(), t.cfg.Sources.Prefix),
		TmpFileSuffix:  t.cfg.Sources.Suffix,
		Breakpoints:    bps,
		StoppedThreads: stopped,
		RichRendering:  true,
		ExceptionPaths: append([]string{}, t.cfg.ExceptionPaths...),
		CopyToGlobals:  t.copyToGlobalsEnabled(),
		SessionID:      t.sessionID,
	})
}

func (t *translator) copyToGlobalsEnabled() bool {
	t.capMu.Lock()
	defer t.capMu.Unlock()
	return t.cfg.CopyToGlobals && (t.supportsSetExpression == nil || *t.supportsSetExpression)
}

// CopyToGlobalsArguments are the arguments of a copyToGlobals request
type CopyToGlobalsArguments struct {
	SrcVariableName string `json:"srcVariableName"`
	DstVariableName string `json:"dstVariableName"`
	SrcFrameID      int    `json:"srcFrameId"`
}

func (t *translator) copyToGlobals(ctx context.Context, req *dap.Request) *dap.Response {
	if !t.copyToGlobalsEnabled() {
		return t.fail(req, debugerrors.CapabilityUnsupported("copyToGlobals", "the debug adapter must support setExpression"))
	}

	var args CopyToGlobalsArguments
	if err := req.DecodeArguments(&args); err != nil {
		return t.fail(req, debugerrors.InvalidParameter("arguments", string(req.Arguments), "copyToGlobals arguments").WithCause(err))
	}
	if args.SrcVariableName == "" {
		return t.fail(req, debugerrors.MissingParameter("srcVariableName", "Name the variable to copy."))
	}
	if args.DstVariableName == "" {
		return t.fail(req, debugerrors.MissingParameter("dstVariableName", "Name the global to assign."))
	}

	resp, err := t.client.Do(ctx, "setExpression", godap.SetExpressionArguments{
		Expression: args.DstVariableName,
		Value:      args.SrcVariableName,
		FrameId:    args.SrcFrameID,
	})
	if err != nil {
		return t.fail(req, err)
	}
	return resp
}

func (t *translator) inspectVariables(ctx context.Context, req *dap.Request) *dap.Response {
	resp, err := t.client.Do(ctx, "variables", godap.VariablesArguments{VariablesReference: 0})
	if err != nil {
		return t.fail(req, err)
	}
	return resp
}

// RichInspectArguments are the arguments of a richInspectVariables request
type RichInspectArguments struct {
	VariableName string `json:"variableName"`
	FrameID      int    `json:"frameId"`
}

func (t *translator) richInspectVariables(ctx context.Context, req *dap.Request) *dap.Response {
	var args RichInspectArguments
	if err := req.DecodeArguments(&args); err != nil {
		return payloadResponse(req, inspect.RenderInvalidRequest(err.Error()))
	}
	if args.VariableName == "" {
		return payloadResponse(req, inspect.RenderInvalidRequest("variableName is required"))
	}

	res, err := t.builder.Inspect(ctx, args.VariableName, args.FrameID)
	if err != nil {
		return t.fail(req, err)
	}
	if res.Err != nil {
		t.log.V(1).Info("Variable not found", "name", args.VariableName, "frameId", args.FrameID, "reason", res.Err.Error())
	}
	return payloadResponse(req, inspect.Render(res, t.now()))
}

func payloadResponse(req *dap.Request, p *inspect.Payload) *dap.Response {
	resp := dap.NewResponse(req, p)
	resp.Success = p.Success
	if !p.Success {
		if data, ok := p.Data[inspect.MimeJSON].(map[string]any); ok {
			resp.Message, _ = data["message"].(string)
		}
	}
	return resp
}

func (t *translator) disconnect(ctx context.Context, req *dap.Request) *dap.Response {
	resp := t.forward(ctx, req)
	t.client.Threads().Clear()
	return resp
}
