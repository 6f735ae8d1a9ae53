// Package history is a file backed execution environment.
//
// The standalone bridge does not run inside the executor, so the executor
// appends one JSON line per executed cell to a history file:
//
//	{"index":2,"code":"int x = 1;"}
//
// History reads that file and keeps it current while Watch runs.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

const (
	// Fallback polling in case change events are lost
	pollInterval  = 2 * time.Second
	watchRetries  = 3
	maxLineLength = 4 * 1024 * 1024
)

// Entry is one line of the history file
type Entry struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
}

// History is the execution record of one process
type History struct {
	path string
	pid  int
	log  logr.Logger

	mu    sync.RWMutex
	cells map[int]string
}

// Open loads the history at path for the process pid.
// A missing file is an empty history; it is picked up once it appears.
func Open(path string, pid int, log logr.Logger) (*History, error) {
	if path == "" {
		return nil, fmt.Errorf("history file path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history file '%s': %w", path, err)
	}

	h := &History{
		path:  abs,
		pid:   pid,
		log:   log,
		cells: make(map[int]string),
	}
	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// Path returns the absolute path of the history file
func (h *History) Path() string {
	return h.path
}

// Reload rereads the history file. Malformed lines are skipped.
func (h *History) Reload() error {
	f, err := os.Open(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		h.mu.Lock()
		h.cells = make(map[int]string)
		h.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open history file '%s': %w", h.path, err)
	}
	defer f.Close()

	cells := make(map[int]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			h.log.V(1).Info("Skipping malformed history line", "line", line, "reason", err.Error())
			continue
		}
		if e.Index < 0 {
			h.log.V(1).Info("Skipping history line with negative index", "line", line)
			continue
		}
		cells[e.Index] = e.Code
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read history file '%s': %w", h.path, err)
	}

	h.mu.Lock()
	h.cells = cells
	h.mu.Unlock()

	h.log.V(1).Info("History loaded", "path", h.path, "cells", len(cells))
	return nil
}

// Watch reloads the history whenever the file changes, until ctx is cancelled.
// The containing directory is watched so that files replaced by rename are followed.
func (h *History) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher for history file '%s': %w", h.path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		return fmt.Errorf("failed to watch directory of history file '%s': %w", h.path, err)
	}

	// Catch writes that happened before the watch was in place
	h.reloadLogged()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	errCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case we, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(we.Name) != h.path {
				continue
			}
			if we.Has(fsnotify.Write) || we.Has(fsnotify.Create) || we.Has(fsnotify.Remove) || we.Has(fsnotify.Rename) {
				h.reloadLogged()
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			errCount++
			if errCount > watchRetries {
				return fmt.Errorf("watching history file '%s' failed: %w", h.path, werr)
			}
			h.log.V(1).Info("History watcher error", "reason", werr.Error())

		case <-ticker.C:
			h.reloadLogged()
		}
	}
}

func (h *History) reloadLogged() {
	if err := h.Reload(); err != nil {
		h.log.Error(err, "Failed to reload history")
	}
}

// ProcessID returns the pid of the process executing the cells
func (h *History) ProcessID() int {
	return h.pid
}

// ExecutionCounts returns, in ascending order, every index code was executed under
func (h *History) ExecutionCounts(code string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []int
	for idx, c := range h.cells {
		if c == code {
			out = append(out, idx)
		}
	}
	slices.Sort(out)
	return out
}

// CodeForExecution returns the code executed at index
func (h *History) CodeForExecution(index int) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	code, ok := h.cells[index]
	return code, ok
}

// Len returns the number of recorded executions
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cells)
}
