package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Adapter.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Adapter.Host)
	}
	if cfg.Adapter.PortRangeStart != 9999 || cfg.Adapter.PortRangeEnd != 10099 {
		t.Errorf("expected port range 9999..10099, got %d..%d", cfg.Adapter.PortRangeStart, cfg.Adapter.PortRangeEnd)
	}
	if len(cfg.Adapter.InitCommands) != 2 {
		t.Fatalf("expected 2 init commands, got %d", len(cfg.Adapter.InitCommands))
	}
	if cfg.Adapter.InitCommands[0] != "settings set plugin.jit-loader.gdb.enable on" {
		t.Errorf("unexpected first init command: %s", cfg.Adapter.InitCommands[0])
	}
	if cfg.Frontend.Controller != "debugger" || cfg.Frontend.ControllerHeader != "debugger_header" {
		t.Errorf("unexpected endpoint names: %+v", cfg.Frontend)
	}
	if time.Duration(cfg.RequestTimeout) != 30*time.Second {
		t.Errorf("expected request timeout 30s, got %v", time.Duration(cfg.RequestTimeout))
	}
	if cfg.Sources.HashSeed != DefaultHashSeed {
		t.Errorf("expected hash seed %d, got %d", DefaultHashSeed, cfg.Sources.HashSeed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Adapter.MaxPortAttempts != DefaultConfig().Adapter.MaxPortAttempts {
		t.Errorf("expected default MaxPortAttempts, got %d", cfg.Adapter.MaxPortAttempts)
	}
}

// TestLoadConfig_FromFile verifies loading and partially overriding configuration from JSON.
func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"adapter": {"path": "/opt/llvm/bin/lldb-dap", "portRangeStart": 20000, "portRangeEnd": 20010},
		"sources": {"suffix": ".cc"},
		"copyToGlobals": false,
		"requestTimeout": "5s"
	}`
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Adapter.Path != "/opt/llvm/bin/lldb-dap" {
		t.Errorf("expected overridden path, got %s", cfg.Adapter.Path)
	}
	if cfg.Adapter.PortRangeStart != 20000 || cfg.Adapter.PortRangeEnd != 20010 {
		t.Errorf("expected port range 20000..20010, got %d..%d", cfg.Adapter.PortRangeStart, cfg.Adapter.PortRangeEnd)
	}
	if cfg.Adapter.Host != "127.0.0.1" {
		t.Errorf("expected default host to survive partial override, got %s", cfg.Adapter.Host)
	}
	if cfg.Sources.Suffix != ".cc" || cfg.Sources.Prefix != "cell_" {
		t.Errorf("unexpected sources config: %+v", cfg.Sources)
	}
	if cfg.CopyToGlobals {
		t.Error("expected copyToGlobals to be disabled")
	}
	if time.Duration(cfg.RequestTimeout) != 5*time.Second {
		t.Errorf("expected request timeout 5s, got %v", time.Duration(cfg.RequestTimeout))
	}
}

// TestLoadConfig_NonExistent verifies error on missing file.
func TestLoadConfig_NonExistent(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/cellbridge.json"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

// TestLoadConfig_InvalidRange verifies that an inverted port range is rejected.
func TestLoadConfig_InvalidRange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte(`{"adapter": {"portRangeStart": 10100, "portRangeEnd": 10000}}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected validation error for inverted port range")
	}
}

// TestExpandArgs verifies adapter argument templating.
func TestExpandArgs(t *testing.T) {
	vars := TemplateVars{
		Host:   "localhost",
		Port:   10001,
		PID:    4242,
		LogDir: "/tmp/logs",
		Env:    map[string]string{"LLDB_FLAVOR": "jit"},
	}

	tests := []struct {
		in   string
		want string
	}{
		{"listen://${host}:${port}", "listen://localhost:10001"},
		{"--log=${logDir}/lldb-dap.log", "--log=/tmp/logs/lldb-dap.log"},
		{"${pid}", "4242"},
		{"${env:LLDB_FLAVOR}", "jit"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		got, err := vars.Expand(tt.in)
		if err != nil {
			t.Errorf("Expand(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestExpand_UnknownVariable verifies unknown variables are kept and reported.
func TestExpand_UnknownVariable(t *testing.T) {
	got, err := TemplateVars{}.Expand("${workspaceFolder}/x")
	if err == nil {
		t.Error("expected error for unknown variable")
	}
	if got != "${workspaceFolder}/x" {
		t.Errorf("expected unexpanded text to be kept, got %q", got)
	}
}

// TestExpandArgs_ReportsEveryArgument verifies all failing arguments are listed.
func TestExpandArgs_ReportsEveryArgument(t *testing.T) {
	_, err := ExpandArgs([]string{"--port", "${port}", "${nope}"}, TemplateVars{})
	if err == nil {
		t.Fatal("expected error when port is not allocated")
	}
	if !strings.Contains(err.Error(), "argument 1") || !strings.Contains(err.Error(), "argument 2") {
		t.Errorf("expected both failing arguments in error, got %v", err)
	}
}

// TestValidate_RejectsUnknownTemplateVariable verifies templates are checked at load time.
func TestValidate_RejectsUnknownTemplateVariable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Adapter.Path = "/usr/bin/lldb-dap"
	cfg.Adapter.Args = []string{"--connection", "listen://${host}:${prot}"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for misspelled variable")
	}

	cfg.Adapter.Args = []string{"--connection", "listen://${host}:${port}", "${env:HOME}"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

// TestInspectMaxElements verifies the container expansion bound.
func TestInspectMaxElements(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Inspect.MaxElements != 1000 {
		t.Errorf("expected inspect.maxElements 1000, got %d", cfg.Inspect.MaxElements)
	}

	cfg.Adapter.Path = "/usr/bin/lldb-dap"
	cfg.Inspect.MaxElements = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for inspect.maxElements 0")
	}
}
