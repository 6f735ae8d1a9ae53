package adapters

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// stopGracePeriod bounds how long Stop waits for the killed adapter to be reaped
const stopGracePeriod = 5 * time.Second

// Process is a running debug adapter subprocess listening on Host:Port
type Process struct {
	Host    string
	Port    int
	LogFile string

	cmd   *exec.Cmd
	files []*os.File

	done    chan struct{}
	exitMu  sync.Mutex
	exitErr error
	stopped bool
}

// startProcess starts cmd and begins supervising it. files are closed once the process exits.
func startProcess(cmd *exec.Cmd, host string, port int, logFile string, files ...*os.File) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		Host:    host,
		Port:    port,
		LogFile: logFile,
		cmd:     cmd,
		files:   files,
		done:    make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	p.exitMu.Lock()
	p.exitErr = err
	p.exitMu.Unlock()

	for _, f := range p.files {
		_ = f.Close()
	}
	close(p.done)
}

// Address returns the host:port the adapter listens on
func (p *Process) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// PID returns the adapter's process id
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed when the adapter process exits
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports, without blocking, whether the process is still running
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the result of waiting on the process once it has exited
func (p *Process) ExitErr() error {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.exitErr
}

// Stopped reports whether the exit was requested through Stop
func (p *Process) Stopped() bool {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.stopped
}

// Stop kills the adapter process group and waits briefly for it to be reaped
func (p *Process) Stop() error {
	p.exitMu.Lock()
	p.stopped = true
	p.exitMu.Unlock()

	if !p.Alive() {
		return nil
	}

	var err error
	err = multierr.Append(err, killProcessGroup(p.cmd))

	select {
	case <-p.done:
	case <-time.After(stopGracePeriod):
		err = multierr.Append(err, os.ErrDeadlineExceeded)
	}
	return err
}
