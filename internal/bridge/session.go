package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ctagard/cellbridge/internal/adapters"
	"github.com/ctagard/cellbridge/internal/config"
	"github.com/ctagard/cellbridge/internal/dap"
	debugerrors "github.com/ctagard/cellbridge/internal/errors"
	"github.com/ctagard/cellbridge/internal/logging"
	"github.com/ctagard/cellbridge/internal/sources"
	"github.com/ctagard/cellbridge/pkg/types"
)

// Options configures a Session
type Options struct {
	Config   *config.Config
	Env      ExecutionEnvironment
	Frontend Frontend

	// Adapter defaults to lldb-dap configured from Config
	Adapter adapters.Adapter

	Log logr.Logger
}

// connectFunc starts an adapter and returns a transport connected to it.
// proc may be nil when the transport is not backed by a subprocess.
type connectFunc func(ctx context.Context) (*adapters.Process, *dap.Transport, error)

// Session is the debug session of one execution environment
type Session struct {
	id       string
	cfg      *config.Config
	env      ExecutionEnvironment
	frontend Frontend
	adapter  adapters.Adapter
	mapper   *sources.Mapper
	log      logr.Logger
	connect  connectFunc

	seq atomic.Int64

	mu      sync.RWMutex
	status  types.SessionStatus
	proc    *adapters.Process
	client  *dap.Client
	tr      *translator
	relay   *relay
	cancel  context.CancelFunc
	lastErr error
	wg      sync.WaitGroup
}

// NewSession creates a stopped session
func NewSession(opts Options) (*Session, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Env == nil {
		return nil, fmt.Errorf("execution environment is required")
	}
	if opts.Frontend == nil {
		return nil, fmt.Errorf("frontend is required")
	}
	log := opts.Log
	cfg := opts.Config

	if opts.Adapter == nil {
		opts.Adapter = adapters.NewLLDBAdapter(cfg.Adapter, cfg.Sources.TmpDir, opts.Env.ProcessID(), log.WithName("adapter"))
	}

	s := &Session{
		id:       uuid.New().String(),
		cfg:      cfg,
		env:      opts.Env,
		frontend: opts.Frontend,
		adapter:  opts.Adapter,
		log:      log.WithName("session"),
		status:   types.SessionStatusStopped,
	}
	s.mapper = sources.NewMapper(opts.Env, sources.Options{
		Dir:      cfg.Sources.TmpDir,
		HashSeed: cfg.Sources.HashSeed,
		Prefix:   cfg.Sources.Prefix,
		Suffix:   cfg.Sources.Suffix,
		Log:      log.WithName("sources"),
	})
	s.connect = s.startAdapter

	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Status returns the current session status
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// startAdapter spawns the adapter and dials it
func (s *Session) startAdapter(ctx context.Context) (*adapters.Process, *dap.Transport, error) {
	proc, err := s.adapter.Start(ctx)
	if err != nil {
		return nil, nil, err
	}

	transport, err := adapters.Connect(ctx, proc, time.Duration(s.cfg.ConnectTimeout), s.log)
	if err != nil {
		return nil, nil, multierr.Append(err, proc.Stop())
	}
	return proc, transport, nil
}

// Start spawns the adapter, connects to it and binds the frontend endpoints.
// On failure the session stays stopped and nothing is left running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != types.SessionStatusStopped {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("debug session %s is already %s", s.id, status)
	}
	s.status = types.SessionStatusStarting
	s.mu.Unlock()

	if err := logging.DumpConfig(s.cfg); err != nil {
		s.log.Error(err, "Failed to dump debugger configuration")
	}

	// Connecting can take up to connectTimeout; Info and Dispatch stay responsive meanwhile
	proc, transport, err := s.connect(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.status = types.SessionStatusStopped
		s.lastErr = err
		s.log.Error(err, "Could not start debugger")
		return fmt.Errorf("could not start debugger: %w", err)
	}
	if s.status != types.SessionStatusStarting {
		cerr := transport.Close()
		if proc != nil {
			cerr = multierr.Append(cerr, proc.Stop())
		}
		if cerr != nil {
			s.log.Error(cerr, "Failed to release debug adapter after stop")
		}
		return fmt.Errorf("debug session %s was stopped while starting", s.id)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rl := newRelay(runCtx, s.frontend, s.log.WithName("relay"))
	client := dap.NewClient(transport, dap.ClientOptions{
		Log:            s.log.WithName("dap"),
		OnEvent:        rl.push,
		RequestTimeout: time.Duration(s.cfg.RequestTimeout),
	})
	tr := newTranslator(client, s.mapper, s.env, s.adapter, s.cfg, s.id, s.log.WithName("translate"))

	s.proc = proc
	s.client = client
	s.tr = tr
	s.relay = rl
	s.cancel = cancel
	s.lastErr = nil

	if err := s.frontend.Bind(s.cfg.Frontend.Controller, s.cfg.Frontend.ControllerHeader, s); err != nil {
		s.teardownLocked()
		s.status = types.SessionStatusStopped
		s.lastErr = err
		return fmt.Errorf("could not bind debugger endpoints: %w", err)
	}

	s.wg.Add(1)
	go s.supervise(runCtx, proc, client)

	s.status = types.SessionStatusRunning
	s.log.Info("Debug session started", "id", s.id, "adapter", s.adapter.Name())
	return nil
}

// Stop unbinds the frontend endpoints and tears down the adapter.
// Stopping a stopped session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.status {
	case types.SessionStatusStopped:
		s.mu.Unlock()
		return nil
	case types.SessionStatusStarting:
		// Start releases what it connected once it sees the stop
		s.status = types.SessionStatusStopped
		s.mu.Unlock()
		s.log.Info("Debug session stopped while starting", "id", s.id)
		return nil
	}

	err := s.frontend.Unbind(s.cfg.Frontend.Controller, s.cfg.Frontend.ControllerHeader)
	err = multierr.Append(err, s.teardownLocked())
	s.status = types.SessionStatusStopped
	s.mu.Unlock()

	// The supervisor takes the lock to record a degraded state, so wait outside it
	s.wg.Wait()

	s.log.Info("Debug session stopped", "id", s.id)
	return err
}

// teardownLocked releases everything Start acquired. Must be called with mu held.
func (s *Session) teardownLocked() error {
	var err error
	if s.cancel != nil {
		s.cancel()
	}
	if s.client != nil {
		err = multierr.Append(err, s.client.Close())
	}
	if s.relay != nil {
		s.relay.wait()
	}
	if s.proc != nil {
		err = multierr.Append(err, s.proc.Stop())
	}

	s.proc = nil
	s.client = nil
	s.tr = nil
	s.relay = nil
	s.cancel = nil
	return err
}

// Dispatch implements Dispatcher
func (s *Session) Dispatch(ctx context.Context, raw []byte) ([]byte, error) {
	req, err := dap.ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	tr := s.tr
	status := s.status
	lastErr := s.lastErr
	s.mu.RUnlock()

	var resp *dap.Response
	switch {
	case tr == nil:
		resp = unavailable(req, lastErr)
	case status == types.SessionStatusDegraded && req.Command != "debugInfo" && req.Command != "dumpCell" && req.Command != "source":
		resp = unavailable(req, lastErr)
	default:
		resp = tr.handle(ctx, req)
	}
	resp.Seq = int(s.seq.Add(1))

	return json.Marshal(resp)
}

func unavailable(req *dap.Request, cause error) *dap.Response {
	de := debugerrors.DebuggerUnavailable(nil)
	if cause != nil {
		de = de.WithCause(cause)
	}
	return dap.NewErrorResponse(req, de.Message)
}

// Info implements Dispatcher
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := types.SessionInfo{
		SessionID:      s.id,
		Status:         s.status,
		Adapter:        s.adapter.Name(),
		TargetPID:      s.env.ProcessID(),
		StoppedThreads: []int{},
	}
	if s.proc != nil {
		info.AdapterAddress = s.proc.Address()
		info.AdapterPID = s.proc.PID()
		info.AdapterLog = s.proc.LogFile
	}
	if s.client != nil {
		if ids := s.client.Threads().IDs(); ids != nil {
			info.StoppedThreads = ids
		}
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

// Mapper exposes the session's source mapping
func (s *Session) Mapper() *sources.Mapper {
	return s.mapper
}
