// Package supervisor implements the Supervisor/Lifecycle component
// (spec.md §4.8): the startup sequence that wires every other module
// together, the foreground run loop, and orderly shutdown.
package supervisor

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ianremillard/agentyes/internal/autoresponder"
	"github.com/ianremillard/agentyes/internal/inputmux"
	"github.com/ianremillard/agentyes/internal/ipc"
	"github.com/ianremillard/agentyes/internal/logsink"
	"github.com/ianremillard/agentyes/internal/matcher"
	"github.com/ianremillard/agentyes/internal/pipeline"
	"github.com/ianremillard/agentyes/internal/profile"
	"github.com/ianremillard/agentyes/internal/ptydriver"
	"github.com/ianremillard/agentyes/internal/registry"
)

// Config is what the CLI collaborator resolves before calling Run
// (spec.md §6 "Consumed from the CLI collaborator").
type Config struct {
	AssistantName string
	Argv          []string // already includes ArgvPrefix; Prompt is appended separately
	CWD           string
	Prompt        string
	Verbose       bool
	Profile       *profile.Profile
}

// gracefulWait is how long the Supervisor waits for the child to exit
// after forwarding SIGINT/SIGTERM before escalating to SIGKILL (spec.md
// §5 "Cancellation").
const gracefulWait = 5 * time.Second

// Run executes the full startup sequence, blocks for the lifetime of the
// session, and returns the process exit code described in spec.md §6
// "Exit codes". It never returns early except on a startup failure
// (return value 1, no Registry record written, per spec.md §4.8's
// "any failure before register aborts cleanly").
func Run(cfg Config) int {
	argv := append([]string{}, cfg.Argv...)
	if cfg.Prompt != "" {
		argv = append(argv, "--", cfg.Prompt)
	}
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "agentyes: no command to run")
		return 1
	}

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 80, 24
	}

	driver, err := ptydriver.Start(argv[0], argv[1:], cfg.CWD, ptydriver.Size{Cols: cols, Rows: rows})
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: cannot start %s: %v\n", argv[0], err)
		return 1
	}

	pid := driver.PID()

	reg, err := registry.Open(cfg.CWD, log.New(os.Stderr, "agentyes: ", 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: registry unavailable: %v\n", err)
		driver.Kill(syscall.SIGKILL)
		return 1
	}

	sinks, err := logsink.Open(cfg.CWD, pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: cannot open logs: %v\n", err)
		driver.Kill(syscall.SIGKILL)
		reg.Close()
		return 1
	}

	fifoPath := filepath.Join(logsink.Root(cfg.CWD), "fifo", fmt.Sprintf("%d.stdin", pid))
	endpoint, ipcErr := ipc.Create(fifoPath)
	if ipcErr != nil {
		sinks.Debug.Printf("ipc: %v (continuing without out-of-band input)", ipcErr)
		fifoPath = ""
	}

	now := nowMillis()
	if err := reg.Register(registry.Record{
		PID:       pid,
		Assistant: cfg.AssistantName,
		Argv:      cfg.Argv,
		Prompt:    cfg.Prompt,
		CWD:       cfg.CWD,
		LogFile:   filepath.Join(logsink.Root(cfg.CWD), "logs", fmt.Sprintf("%d.lines.log", pid)),
		IPCPath:   fifoPath,
		StartedAt: now,
		UpdatedAt: now,
	}); err != nil {
		sinks.Debug.Printf("registry: register failed: %v", err)
	}

	s := &supervisorRun{
		cfg:      cfg,
		driver:   driver,
		reg:      reg,
		sinks:    sinks,
		endpoint: endpoint,
		fd:       fd,
	}
	return s.runLoop()
}

type supervisorRun struct {
	cfg      Config
	driver   *ptydriver.Driver
	reg      *registry.Registry
	sinks    *logsink.Sinks
	endpoint *ipc.Endpoint
	fd       int

	finishOnce sync.Once
	oldState   *term.State
	exitCode   int
	exitReason string
	done       chan struct{}
}

func (s *supervisorRun) runLoop() int {
	// mux and responder are referenced by the engine's transition callback
	// before they exist; the closure only runs once Feed is called (after
	// all three are assigned below), so the forward reference is safe.
	var mux *inputmux.Mux
	var responder *autoresponder.Responder
	engine := matcher.New(s.cfg.Profile, func(tr matcher.Transition) {
		mux.NotifyTransition(tr)
		responder.OnTransition(tr)
	})
	mux = inputmux.New(s.driver.Write, engine, s.onPreReadyAbort)
	responder = autoresponder.New(s.cfg.Profile, mux, s.sinks.Debug)

	pipe := pipeline.New(os.Stdout, s.sinks, engine)
	s.driver.OnData(pipe.Feed)

	s.done = make(chan struct{})

	oldState, err := term.MakeRaw(s.fd)
	if err == nil {
		s.oldState = oldState
	} else {
		s.sinks.Debug.Printf("raw mode unavailable: %v", err)
	}
	defer s.restoreTerminal()

	if s.endpoint != nil {
		go func() {
			_ = s.endpoint.Serve(func(frame []byte) { mux.FeedIPC(frame) })
		}()
	}

	go s.readTerminalStdin(mux)
	go s.watchResize()
	go s.watchSignals()

	s.driver.OnExit(func(code *int) {
		s.handleChildExit(pipe, engine, code)
	})
	go s.driver.Run()

	<-s.done
	return s.exitCode
}

func (s *supervisorRun) onPreReadyAbort() {
	fmt.Fprint(os.Stdout, "\r\nUser aborted: SIGINT\r\n")
	s.driver.Kill(syscall.SIGTERM)
	s.finish(130, "user-abort", nil)
}

func (s *supervisorRun) readTerminalStdin(mux *inputmux.Mux) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			mux.FeedTerminal(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *supervisorRun) watchResize() {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	for range winch {
		cols, rows, err := term.GetSize(s.fd)
		if err != nil {
			continue
		}
		_ = s.driver.Resize(ptydriver.Size{Cols: cols, Rows: rows})
	}
}

func (s *supervisorRun) watchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	s.driver.Kill(sig.(syscall.Signal))

	select {
	case <-s.done:
	case <-time.After(gracefulWait):
		s.driver.Kill(syscall.SIGKILL)
	}
}

func (s *supervisorRun) handleChildExit(pipe *pipeline.Pipeline, engine *matcher.Engine, code *int) {
	pipe.Terminate()
	engine.Terminate()

	reason := "normal"
	exit := 0
	switch {
	case code == nil:
		reason = "crash"
		exit = 1
	case *code != 0:
		reason = "crash"
		exit = *code
	default:
		reason = "normal"
		exit = 0
	}
	s.finish(exit, reason, code)
}

// finish runs the shutdown sequence exactly once (spec.md §4.8 "On child
// exit", §3 invariant "a session transitions status exactly once to
// exited"), however many of onPreReadyAbort/handleChildExit race to call
// it — sync.Once guards the entire body including the channel close, not
// just the exitCode/exitReason assignment, so a concurrent second caller
// can neither re-run the teardown nor overwrite the first caller's result.
func (s *supervisorRun) finish(exitCode int, reason string, childCode *int) {
	s.finishOnce.Do(func() {
		s.exitCode = exitCode
		s.exitReason = reason

		if err := s.reg.UpdateStatus(s.driver.PID(), registry.StatusExited, reason, childCode, nowMillis()); err != nil {
			s.sinks.Debug.Printf("registry: update status failed: %v", err)
		}
		s.sinks.Close()
		if s.endpoint != nil {
			if err := s.endpoint.Close(); err != nil {
				s.sinks.Debug.Printf("ipc: close failed: %v", err)
			}
		}
		s.reg.Close()

		close(s.done)
	})
}

func (s *supervisorRun) restoreTerminal() {
	if s.oldState != nil {
		term.Restore(s.fd, s.oldState)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
