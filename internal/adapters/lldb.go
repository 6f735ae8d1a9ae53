package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/ctagard/cellbridge/internal/config"
	debugerrors "github.com/ctagard/cellbridge/internal/errors"
)

const (
	lldbLogFileName   = "lldb-dap.log"
	lldbLogDirPattern = "cellbridge_debug_logs_%d"
)

// AttachArguments is the lldb-dap attach payload
type AttachArguments struct {
	PID          int      `json:"pid"`
	InitCommands []string `json:"initCommands,omitempty"`
}

// LLDBAdapter starts lldb-dap (formerly lldb-vscode) in TCP listen mode
type LLDBAdapter struct {
	cfg     config.AdapterConfig
	tmpDir  string
	hostPID int
	log     logr.Logger
}

// NewLLDBAdapter creates a new LLDB adapter. hostPID keys the log directory;
// tmpDir is created on start for materialized sources.
func NewLLDBAdapter(cfg config.AdapterConfig, tmpDir string, hostPID int, log logr.Logger) *LLDBAdapter {
	if cfg.Path == "" {
		cfg.Path = "lldb-dap"
	}
	return &LLDBAdapter{
		cfg:     cfg,
		tmpDir:  tmpDir,
		hostPID: hostPID,
		log:     log,
	}
}

// Name returns the adapter binary name
func (l *LLDBAdapter) Name() string {
	return filepath.Base(l.cfg.Path)
}

// LogDir is where the adapter's output is written
func (l *LLDBAdapter) LogDir() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf(lldbLogDirPattern, l.hostPID))
}

// Start finds a free port, spawns lldb-dap listening on it and checks that it did not exit right away
func (l *LLDBAdapter) Start(ctx context.Context) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := FindFreePort(l.cfg.Host, l.cfg.PortRangeStart, l.cfg.PortRangeEnd, l.cfg.MaxPortAttempts)
	if err != nil {
		return nil, err
	}

	logDir := l.LogDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, debugerrors.AdapterSpawnFailed(l.cfg.Path, fmt.Errorf("failed to create log directory: %w", err))
	}
	logPath := filepath.Join(logDir, lldbLogFileName)

	args, err := config.ExpandArgs(l.cfg.Args, config.TemplateVars{
		Host:   l.cfg.Host,
		Port:   port,
		PID:    l.hostPID,
		LogDir: logDir,
		TmpDir: l.tmpDir,
	})
	if err != nil {
		return nil, debugerrors.ConfigInvalid("adapter.args", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, debugerrors.AdapterSpawnFailed(l.cfg.Path, fmt.Errorf("failed to open adapter log: %w", err))
	}

	// The adapter must never block reading a terminal
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		_ = logFile.Close()
		return nil, debugerrors.AdapterSpawnFailed(l.cfg.Path, err)
	}

	// Not CommandContext: the adapter outlives the request that started it
	//nolint:gosec // G204: This is a debug adapter that intentionally spawns subprocesses
	cmd := exec.Command(l.cfg.Path, args...)
	cmd.Env = os.Environ()
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Set platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)

	proc, err := startProcess(cmd, l.cfg.Host, port, logPath, logFile, devNull)
	if err != nil {
		_ = logFile.Close()
		_ = devNull.Close()
		return nil, debugerrors.AdapterSpawnFailed(l.cfg.Path, err)
	}

	if !proc.Alive() {
		return nil, debugerrors.AdapterExited(l.cfg.Path, logPath, proc.ExitErr())
	}

	if l.tmpDir != "" {
		if err := os.MkdirAll(l.tmpDir, 0755); err != nil {
			_ = proc.Stop()
			return nil, debugerrors.AdapterSpawnFailed(l.cfg.Path, fmt.Errorf("failed to create source directory: %w", err))
		}
	}

	l.log.Info("Debug adapter started", "path", l.cfg.Path, "pid", proc.PID(), "address", proc.Address(), "log", logPath)
	return proc, nil
}

// BuildAttachArgs builds the attach arguments for lldb-dap
func (l *LLDBAdapter) BuildAttachArgs(pid int) any {
	return AttachArguments{
		PID:          pid,
		InitCommands: append([]string(nil), l.cfg.InitCommands...),
	}
}
