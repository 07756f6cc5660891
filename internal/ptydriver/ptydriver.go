// Package ptydriver opens a pseudo-terminal and spawns the assistant child
// process inside it.
//
//	┌──────────────────────────────┐
//	│  Driver                      │
//	│  ┌────────────┐              │
//	│  │ assistant  │◄── PTY slave │
//	│  └────────────┘              │
//	│         ▲  ▼                 │
//	│       PTY master             │
//	│         │                    │
//	│    readLoop goroutine        │
//	│     └── onData(chunk)        │
//	└──────────────────────────────┘
package ptydriver

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// minCols is the minimum terminal width tolerated; narrower requests are
// clamped to avoid assistant layout bugs (spec.md §4.1).
const minCols = 20

// Size is a terminal window size.
type Size struct {
	Cols int
	Rows int
}

// Driver owns one PTY master and the child process behind it.
type Driver struct {
	mu   sync.Mutex
	ptm  *os.File
	cmd  *exec.Cmd
	pid  int
	done bool // true once the child has exited; further writes are dropped

	onData func([]byte)
	onExit func(code *int)
}

// Start opens a PTY of the given size (name "xterm-color") and spawns
// name(args...) inside it, with cwd as the working directory and the
// caller's environment inherited.
//
// The child is placed in its own session (pty.Start sets Setsid), so
// Kill can signal the whole process group.
func Start(name string, args []string, cwd string, size Size) (*Driver, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-color")

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(clampCols(size.Cols)),
		Rows: uint16(size.Rows),
	})
	if err != nil {
		return nil, fmt.Errorf("pty.Start: %w", err)
	}

	d := &Driver{
		ptm: ptm,
		cmd: cmd,
		pid: cmd.Process.Pid,
	}
	return d, nil
}

func clampCols(cols int) int {
	if cols < minCols {
		return minCols
	}
	return cols
}

// PID returns the child's operating-system process id.
func (d *Driver) PID() int { return d.pid }

// OnData registers the callback invoked with each byte chunk read from the
// child. Not line-buffered — callers that need lines use internal/decoder.
func (d *Driver) OnData(fn func([]byte)) { d.onData = fn }

// OnExit registers the callback invoked exactly once with the child's exit
// code (nil when the child was killed by a signal).
func (d *Driver) OnExit(fn func(code *int)) { d.onExit = fn }

// Run starts draining the PTY master. It blocks until the child exits and
// must be called (typically in its own goroutine) after OnData/OnExit are
// registered.
func (d *Driver) Run() {
	buf := make([]byte, 4096)
	for {
		n, err := d.ptm.Read(buf)
		if n > 0 && d.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.onData(chunk)
		}
		if err != nil {
			// PTY read error means the slave side closed (child exited).
			break
		}
	}

	waitErr := d.cmd.Wait()

	d.mu.Lock()
	d.ptm.Close()
	d.done = true
	d.mu.Unlock()

	var code *int
	if waitErr == nil {
		c := 0
		code = &c
	} else if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Exited() {
				c := status.ExitStatus()
				code = &c
			}
			// else: killed by signal, code stays nil.
		}
	}

	if d.onExit != nil {
		d.onExit(code)
	}
}

// Write enqueues bytes to the child's stdin. Write-after-exit is silently
// dropped (spec.md §4.1 failure semantics).
func (d *Driver) Write(p []byte) {
	d.mu.Lock()
	done := d.done
	ptm := d.ptm
	d.mu.Unlock()
	if done || ptm == nil {
		return
	}
	// Errors here mean the child went away between the done check and the
	// write; both are unrecoverable for this session and are swallowed per
	// spec.md §5 "EOF or broken pipe after child-exit is silently swallowed".
	_, _ = ptm.Write(p)
}

// Resize forwards a new window size to the PTY, clamping cols per spec.
func (d *Driver) Resize(size Size) error {
	d.mu.Lock()
	ptm := d.ptm
	done := d.done
	d.mu.Unlock()
	if done || ptm == nil {
		return nil
	}
	return pty.Setsize(ptm, &pty.Winsize{
		Cols: uint16(clampCols(size.Cols)),
		Rows: uint16(size.Rows),
	})
}

// Kill signals the child with sig.
func (d *Driver) Kill(sig syscall.Signal) {
	d.mu.Lock()
	pid := d.pid
	d.mu.Unlock()
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid > 0 {
		syscall.Kill(-pgid, sig)
		return
	}
	syscall.Kill(pid, sig)
}
