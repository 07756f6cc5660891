// Package ipc implements the per-session out-of-band endpoint (spec.md
// §3 "IPC Endpoint", §6 "IPC endpoint" / "IPC frame format"): a POSIX
// named FIFO that a sibling invocation writes one framed line to, which
// this session forwards into the supervised child's stdin.
//
// Windows named-pipe support is named in spec.md but out of scope here —
// this module targets the POSIX FIFO path only; see DESIGN.md.
package ipc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

// Endpoint owns a receiver-side named FIFO: created right after the PTY
// child spawns (its path is keyed by the child's pid) and before the
// session is registered, unlinked on shutdown (spec.md §3 invariant: "IPC
// endpoint exists iff status = active").
type Endpoint struct {
	path string
	file *os.File // receiver's open-for-read-write handle, keeps the FIFO from seeing EOF between writers
}

// Create makes the named FIFO at path (parent directory must already
// exist — logsink.Init creates fifo/). Mode 0600: only the invoking user
// should be able to inject input into this session.
func Create(path string) (*Endpoint, error) {
	_ = os.Remove(path) // clear a stale FIFO left by an unclean prior exit
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		return nil, fmt.Errorf("mkfifo %s: %w", path, err)
	}

	// Opened O_RDWR (not O_RDONLY) so the receiver never observes EOF when
	// the last writer closes; it only reads what writers actually send.
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Endpoint{path: path, file: f}, nil
}

// Path returns the filesystem path of the endpoint, for Registry storage.
func (e *Endpoint) Path() string { return e.path }

// Serve blocks reading CR-delimited frames from the FIFO and
// invokes onFrame for each one (including its trailing "\r", per spec.md
// §6's frame format), until the endpoint is closed or the reader returns
// an error other than io.EOF.
func (e *Endpoint) Serve(onFrame func(frame []byte)) error {
	r := bufio.NewReader(e.file)
	for {
		line, err := r.ReadString('\r')
		if len(line) > 0 {
			onFrame([]byte(line))
		}
		if err != nil {
			if err == io.EOF {
				continue
			}
			return err
		}
	}
}

// Close unlinks the FIFO and releases the file handle.
func (e *Endpoint) Close() error {
	closeErr := e.file.Close()
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		if closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// Send implements the out-of-band sender's write-a-frame operation
// (spec.md §6 "Exposed to peers"): connect to the FIFO at path, write
// text followed by a single "\r", and close. Bounded by timeout since a
// FIFO open-for-write blocks until a reader exists; spec.md §7 specifies
// a non-zero exit after a connection timeout of ≥5s.
func Send(path string, text string, timeout time.Duration) error {
	opened := make(chan *os.File, 1)
	errCh := make(chan error, 1)

	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			errCh <- err
			return
		}
		opened <- f
	}()

	select {
	case f := <-opened:
		defer f.Close()
		if len(text) > 0 && text[len(text)-1] == '\r' {
			_, err := f.WriteString(text)
			return err
		}
		_, err := f.WriteString(text + "\r")
		return err
	case err := <-errCh:
		return fmt.Errorf("open %s for write: %w", path, err)
	case <-time.After(timeout):
		return fmt.Errorf("timed out connecting to %s after %s (no active session listening?)", path, timeout)
	}
}
