// Package logging builds the structured logger shared by every cellbridge package.
//
// Output is zap formatted for the console and exposed as a logr.Logger so that
// packages depend only on the logr interface. Stdout is reserved for the MCP
// stdio transport, so all log output goes to stderr.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// CELLBRIDGE_LOG, when set, appends the bridge configuration to a log file at start.
	// A value of "1" or "true" selects cellbridge.log in the working directory.
	CELLBRIDGE_LOG = "CELLBRIDGE_LOG"

	defaultConfigLogFile = "cellbridge.log"
	verbosityFlagName    = "verbosity"
)

type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger writing console formatted output to stderr
func New(name string) *Logger {
	return newWithWriter(name, zapcore.Lock(os.Stderr))
}

func newWithWriter(name string, ws zapcore.WriteSyncer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zapLogger := zap.New(zapcore.NewCore(consoleEncoder, ws, atomicLevel))

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetVerbosity maps logr verbosity onto zap levels: V(n) is enabled when n <= verbosity
func (l *Logger) SetVerbosity(verbosity int) {
	if verbosity < 0 {
		verbosity = 0
	}
	l.atomicLevel.SetLevel(zapcore.Level(-verbosity))
}

// AddLevelFlag registers the --verbosity flag on fs
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	fs.IntP(verbosityFlagName, "v", 0, "Log verbosity: 0 info, 1 debug, 2 protocol traces")
}

// ApplyLevelFlag reads --verbosity back from fs after parsing
func (l *Logger) ApplyLevelFlag(fs *pflag.FlagSet) error {
	v, err := fs.GetInt(verbosityFlagName)
	if err != nil {
		return err
	}
	l.SetVerbosity(v)
	return nil
}

func (l *Logger) Flush() {
	l.flush()
}

// DumpConfig appends cfg as indented JSON to the file named by CELLBRIDGE_LOG.
// It does nothing when the variable is unset.
func DumpConfig(cfg any) error {
	target, found := os.LookupEnv(CELLBRIDGE_LOG)
	if !found || target == "" {
		return nil
	}
	if target == "1" || target == "true" {
		target = defaultConfigLogFile
	}

	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config log %s: %w", target, err)
	}
	defer f.Close()

	return writeConfig(f, cfg)
}

func writeConfig(w io.Writer, cfg any) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = fmt.Fprintf(w, "===== DEBUGGER CONFIG %s =====\n%s\n", time.Now().Format(time.RFC3339), data)
	return err
}
