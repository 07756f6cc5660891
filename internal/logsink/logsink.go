// Package logsink manages the three append-only log files kept per session
// (spec.md §4.2) plus the one-time .gitignore under the workspace's
// .agent-yes/ directory.
package logsink

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const gitignoreContents = "logs/\nfifo/\n*.sqlite*\n"

// Sinks holds the three open log files for one session. Each is a single
// writer opened O_APPEND so logs never rotate mid-session (spec.md §3
// invariant).
type Sinks struct {
	Raw   *os.File // verbatim PTY bytes, including ANSI escapes
	Lines *os.File // one decoded line per write, newline-terminated
	Debug *log.Logger
	debugFile *os.File
}

// Root returns the per-workspace state directory, <cwd>/.agent-yes.
func Root(cwd string) string {
	return filepath.Join(cwd, ".agent-yes")
}

// Init creates the workspace layout (logs/, fifo/) and writes the
// create-if-absent .gitignore. It must run before Open.
func Init(cwd string) error {
	root := Root(cwd)
	for _, sub := range []string{"logs", "fifo"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", sub, err)
		}
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte(gitignoreContents), 0o644); err != nil {
			return fmt.Errorf("write .gitignore: %w", err)
		}
	}
	return nil
}

// Open opens (creating if absent) the three log files for pid under
// <cwd>/.agent-yes/logs/.
func Open(cwd string, pid int) (*Sinks, error) {
	logsDir := filepath.Join(Root(cwd), "logs")

	raw, err := openAppend(filepath.Join(logsDir, fmt.Sprintf("%d.raw.log", pid)))
	if err != nil {
		return nil, err
	}
	lines, err := openAppend(filepath.Join(logsDir, fmt.Sprintf("%d.lines.log", pid)))
	if err != nil {
		raw.Close()
		return nil, err
	}
	debugFile, err := openAppend(filepath.Join(logsDir, fmt.Sprintf("%d.debug.log", pid)))
	if err != nil {
		raw.Close()
		lines.Close()
		return nil, err
	}

	return &Sinks{
		Raw:       raw,
		Lines:     lines,
		Debug:     log.New(debugFile, "", log.LstdFlags|log.Lmicroseconds),
		debugFile: debugFile,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// WriteLine appends one newline-terminated line to the line log.
func (s *Sinks) WriteLine(line string) {
	if s.Lines == nil {
		return
	}
	fmt.Fprintln(s.Lines, line)
}

// Close flushes and closes all three files. Safe to call once per Sinks;
// errors are best-effort (spec.md §7: pipeline errors downstream of the PTY
// drop the offending sink rather than bring the session down).
func (s *Sinks) Close() {
	if s.Raw != nil {
		s.Raw.Close()
	}
	if s.Lines != nil {
		s.Lines.Close()
	}
	if s.debugFile != nil {
		s.debugFile.Close()
	}
}
