// Package config provides configuration management for the cellbridge debug bridge.
//
// Configuration controls:
//   - Adapter settings: path to lldb-dap, its argument template and init commands
//   - Port negotiation: host and the bounded port range tried at start
//   - Source materialization: temp directory, hash seed, file prefix and suffix
//   - Timeouts: adapter connect timeout and per-request timeout
//   - Frontend endpoint names bound while the session is running
//
// Configuration can be loaded from a JSON file or use sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultHashSeed is the Murmur3 seed used to name materialized cell files.
const DefaultHashSeed uint32 = 3339675911

// Config holds the bridge configuration
type Config struct {
	Adapter  AdapterConfig  `json:"adapter"`
	Sources  SourcesConfig  `json:"sources"`
	Frontend FrontendConfig `json:"frontend"`
	Inspect  InspectConfig  `json:"inspect"`

	// CopyToGlobals enables the copyToGlobals request when the adapter can serve it
	CopyToGlobals bool `json:"copyToGlobals"`

	// ExceptionPaths are advertised to the frontend in debugInfo replies
	ExceptionPaths []string `json:"exceptionPaths"`

	ConnectTimeout Duration `json:"connectTimeout"`
	RequestTimeout Duration `json:"requestTimeout"`
}

// AdapterConfig holds lldb-dap specific configuration
type AdapterConfig struct {
	Path string `json:"path"` // Path to lldb-dap binary (formerly lldb-vscode)

	// Args is the argument template; see TemplateVars for the supported variables
	Args []string `json:"args"`

	Host            string `json:"host"`
	PortRangeStart  int    `json:"portRangeStart"`
	PortRangeEnd    int    `json:"portRangeEnd"`
	MaxPortAttempts int    `json:"maxPortAttempts"`

	// InitCommands are passed to lldb in the attach request
	InitCommands []string `json:"initCommands"`
}

// SourcesConfig controls where and how cell sources are written to disk
type SourcesConfig struct {
	TmpDir   string `json:"tmpDir"`
	HashSeed uint32 `json:"hashSeed"`
	Prefix   string `json:"prefix"`
	Suffix   string `json:"suffix"`
}

// FrontendConfig names the endpoints bound on the frontend transport
type FrontendConfig struct {
	Controller       string `json:"controller"`
	ControllerHeader string `json:"controllerHeader"`
}

// InspectConfig bounds rich variable inspection
type InspectConfig struct {
	// MaxElements caps the container elements evaluated per request
	MaxElements int `json:"maxElements"`
}

// Duration is a time.Duration that reads either "30s" style strings or nanoseconds from JSON
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or an integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// findLLDBDap searches for lldb-dap in common locations across platforms
func findLLDBDap() string {
	// Check PATH first
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		// macOS - Xcode Command Line Tools, Xcode.app and Homebrew llvm
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/opt/llvm/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",

		// Linux - LLVM/Clang package installations
		"/usr/bin/lldb-dap",
		"/usr/bin/lldb-dap-19",
		"/usr/bin/lldb-dap-18",
		"/usr/lib/llvm-19/bin/lldb-dap",
		"/usr/lib/llvm-18/bin/lldb-dap",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Fall back to default name (will fail if not in PATH, but provides clear error)
	return "lldb-dap"
}

// DefaultTmpDir returns the process scoped directory holding materialized cells
func DefaultTmpDir() string {
	return filepath.Join(os.TempDir(), "cellbridge_"+strconv.Itoa(os.Getpid()))
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Path:            findLLDBDap(),
			Args:            []string{"--connection", "listen://${host}:${port}"},
			Host:            "127.0.0.1",
			PortRangeStart:  9999,
			PortRangeEnd:    10099,
			MaxPortAttempts: 100,
			InitCommands: []string{
				"settings set plugin.jit-loader.gdb.enable on",
				"process interrupt",
			},
		},
		Sources: SourcesConfig{
			TmpDir:   DefaultTmpDir(),
			HashSeed: DefaultHashSeed,
			Prefix:   "cell_",
			Suffix:   ".cpp",
		},
		Frontend: FrontendConfig{
			Controller:       "debugger",
			ControllerHeader: "debugger_header",
		},
		Inspect: InspectConfig{
			MaxElements: 1000,
		},
		CopyToGlobals:  true,
		ExceptionPaths: []string{"C++ Exceptions"},
		ConnectTimeout: Duration(10 * time.Second),
		RequestTimeout: Duration(30 * time.Second),
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the bridge cannot work with
func (c *Config) Validate() error {
	a := c.Adapter
	if a.Path == "" {
		return fmt.Errorf("adapter.path must not be empty")
	}
	if a.PortRangeStart <= 0 || a.PortRangeEnd > 65535 || a.PortRangeStart > a.PortRangeEnd {
		return fmt.Errorf("invalid adapter port range %d..%d", a.PortRangeStart, a.PortRangeEnd)
	}
	if a.MaxPortAttempts <= 0 {
		return fmt.Errorf("adapter.maxPortAttempts must be positive, got %d", a.MaxPortAttempts)
	}
	if c.Sources.TmpDir == "" {
		return fmt.Errorf("sources.tmpDir must not be empty")
	}
	if c.Frontend.Controller == "" || c.Frontend.ControllerHeader == "" {
		return fmt.Errorf("frontend endpoint names must not be empty")
	}
	if c.Inspect.MaxElements <= 0 {
		return fmt.Errorf("inspect.maxElements must be positive, got %d", c.Inspect.MaxElements)
	}
	if c.RequestTimeout <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if err := checkTemplate(a.Args); err != nil {
		return fmt.Errorf("invalid adapter.args: %w", err)
	}
	return nil
}
