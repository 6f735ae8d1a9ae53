// Package sources maps the ephemeral compilation unit names the debug adapter
// sees (input_line_<N>) to persistent files the frontend can open, and keeps
// the breakpoints the frontend set on those files.
//
// Cell text is written once under a content derived name so identical code
// always lands in the same file. Both directions of the mapping and the
// breakpoint set share one mutex, since stack trace rewriting and cell dumps
// can run concurrently.
package sources

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/go-logr/logr"
	"github.com/twmb/murmur3"
)

// EphemeralPrefix starts every compilation unit name the incremental compiler produces
const EphemeralPrefix = "input_line_"

// CodeLookup is the slice of the execution environment the mapper needs
type CodeLookup interface {
	// ExecutionCounts returns the execution indices under which code was run
	ExecutionCounts(code string) []int

	// CodeForExecution returns the text executed at index
	CodeForExecution(index int) (string, bool)
}

// Options configures a Mapper
type Options struct {
	Dir      string
	HashSeed uint32
	Prefix   string
	Suffix   string
	Log      logr.Logger
}

// Mapper is the bidirectional ephemeral name to persistent path relation
type Mapper struct {
	opts   Options
	lookup CodeLookup
	log    logr.Logger

	mu           sync.Mutex
	toEphemeral  map[string][]string
	toPersistent map[string]string
	breakpoints  map[string][]dap.SourceBreakpoint
}

// NewMapper creates a mapper writing files under opts.Dir
func NewMapper(lookup CodeLookup, opts Options) *Mapper {
	log := opts.Log
	return &Mapper{
		opts:         opts,
		lookup:       lookup,
		log:          log,
		toEphemeral:  make(map[string][]string),
		toPersistent: make(map[string]string),
		breakpoints:  make(map[string][]dap.SourceBreakpoint),
	}
}

// EphemeralName returns the compilation unit name for an execution index
func EphemeralName(index int) string {
	return EphemeralPrefix + strconv.Itoa(index+1)
}

// ParseEphemeralName extracts the execution index from a compilation unit name.
// The name may be a bare unit name or a path ending in one.
func ParseEphemeralName(name string) (int, bool) {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	digits, ok := strings.CutPrefix(base, EphemeralPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// IsEphemeral reports whether name follows the compilation unit naming convention
func IsEphemeral(name string) bool {
	return strings.Contains(name, EphemeralPrefix)
}

// Dir is where materialized cells are written
func (m *Mapper) Dir() string {
	return m.opts.Dir
}

// HashCode returns the content identifier used in file names
func (m *Mapper) HashCode(code string) string {
	return strconv.FormatUint(uint64(murmur3.SeedSum32(m.opts.HashSeed, []byte(code))), 10)
}

// PathFor returns the persistent path for code without writing anything
func (m *Mapper) PathFor(code string) string {
	return filepath.Join(m.opts.Dir, m.opts.Prefix+m.HashCode(code)+m.opts.Suffix)
}

// Materialize writes code to its persistent path unless the file already
// exists, and records every ephemeral name the code ran under.
func (m *Mapper) Materialize(code string) (string, error) {
	path := m.PathFor(code)
	if err := writeOnce(path, code); err != nil {
		return "", err
	}

	names := make([]string, 0)
	if m.lookup != nil {
		for _, idx := range m.lookup.ExecutionCounts(code) {
			names = append(names, EphemeralName(idx))
		}
	}

	m.mu.Lock()
	for _, name := range names {
		m.recordLocked(name, path)
	}
	m.mu.Unlock()

	return path, nil
}

// Resolve returns the persistent path for an ephemeral name, materializing
// the code that ran under it on first sight.
func (m *Mapper) Resolve(name string) (string, bool) {
	m.mu.Lock()
	path, ok := m.toPersistent[name]
	m.mu.Unlock()
	if ok {
		return path, true
	}

	idx, ok := ParseEphemeralName(name)
	if !ok || m.lookup == nil {
		return "", false
	}
	code, ok := m.lookup.CodeForExecution(idx)
	if !ok {
		m.log.V(1).Info("No code recorded for compilation unit", "name", name, "index", idx)
		return "", false
	}

	// Other executions of the same code share the file
	path, err := m.Materialize(code)
	if err != nil {
		m.log.Error(err, "Failed to materialize cell", "name", name)
		return "", false
	}

	m.mu.Lock()
	m.recordLocked(name, path)
	m.mu.Unlock()

	return path, true
}

// EphemeralFor returns the first ephemeral name recorded for a persistent path.
// A path that exists on disk but was never seen is recovered from its content.
func (m *Mapper) EphemeralFor(path string) (string, bool) {
	m.mu.Lock()
	names := m.toEphemeral[path]
	m.mu.Unlock()
	if len(names) > 0 {
		return names[0], true
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if _, err := m.Materialize(string(content)); err != nil {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	names = m.toEphemeral[path]
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// EphemeralNames returns every ephemeral name recorded for a persistent path
func (m *Mapper) EphemeralNames(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.toEphemeral[path])
}

// SetBreakpoints replaces the breakpoints stored for path
func (m *Mapper) SetBreakpoints(path string, bps []dap.SourceBreakpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakpoints, path)
	m.breakpoints[path] = slices.Clone(bps)
}

// Breakpoints returns the breakpoints stored for path
func (m *Mapper) Breakpoints(path string) []dap.SourceBreakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.breakpoints[path])
}

// AllBreakpoints returns a snapshot of every stored breakpoint list keyed by path
func (m *Mapper) AllBreakpoints() map[string][]dap.SourceBreakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]dap.SourceBreakpoint, len(m.breakpoints))
	for path, bps := range m.breakpoints {
		out[path] = slices.Clone(bps)
	}
	return out
}

func (m *Mapper) recordLocked(name, path string) {
	if prev, ok := m.toPersistent[name]; ok && prev != path {
		m.toEphemeral[prev] = slices.DeleteFunc(m.toEphemeral[prev], func(n string) bool { return n == name })
	}
	m.toPersistent[name] = path
	if !slices.Contains(m.toEphemeral[path], name) {
		m.toEphemeral[path] = append(m.toEphemeral[path], name)
	}
}

// writeContent fills a freshly created cell file; replaced in tests
var writeContent = func(w io.Writer, content string) error {
	_, err := io.WriteString(w, content)
	return err
}

// writeOnce creates path with content; an existing file is left untouched.
// The content is staged in a temporary file and linked into place, so path
// never holds a partial write.
func writeOnce(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	werr := writeContent(tmp, content)
	cerr := tmp.Close()
	if werr != nil {
		return fmt.Errorf("failed to write %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to write %s: %w", path, cerr)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Link(tmp.Name(), path); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}
