package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestVerbosityControlsDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("test", zapcore.AddSync(&buf))

	log.V(1).Info("hidden")
	log.Flush()
	assert.NotContains(t, buf.String(), "hidden")

	log.SetVerbosity(1)
	log.V(1).Info("shown", "port", 10001)
	log.Flush()
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "10001")
}

func TestLevelFlag(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("test", zapcore.AddSync(&buf))

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	log.AddLevelFlag(fs)
	require.NoError(t, fs.Parse([]string{"-v", "2"}))
	require.NoError(t, log.ApplyLevelFlag(fs))

	log.V(2).Info("trace line")
	log.Flush()
	assert.Contains(t, buf.String(), "trace line")
}

// Packages accept a zero logr.Logger from callers that do not log.
func TestZeroLoggerDiscards(t *testing.T) {
	var zero logr.Logger
	assert.False(t, zero.Enabled())
	assert.NotPanics(t, func() {
		zero.WithName("dap").WithValues("port", 9999).V(1).Info("dropped")
		zero.Error(assert.AnError, "dropped")
	})
}

func TestDumpConfig(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cellbridge.log")
	t.Setenv(CELLBRIDGE_LOG, target)

	require.NoError(t, DumpConfig(map[string]int{"portRangeStart": 9999}))
	require.NoError(t, DumpConfig(map[string]int{"portRangeStart": 20000}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUGGER CONFIG")
	assert.Contains(t, string(data), "9999")
	assert.Contains(t, string(data), "20000", "second dump must append")
}

func TestDumpConfig_Unset(t *testing.T) {
	t.Setenv(CELLBRIDGE_LOG, "")
	assert.NoError(t, DumpConfig(struct{}{}))
}
