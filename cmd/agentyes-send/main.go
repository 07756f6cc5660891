// agentyes-send forwards a line of text into a running agentyes session's
// stdin from a different invocation (spec.md §6 "Exposed to peers": the
// out-of-band sender path).
//
// Usage:
//
//	agentyes-send "do the thing"
//
// Looks up the most recently started active session for the current
// working directory via the Process Registry, then writes one framed
// line to its IPC endpoint.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ianremillard/agentyes/internal/ipc"
	"github.com/ianremillard/agentyes/internal/registry"
)

// connectTimeout matches spec.md §7's "connection timeout ≥ 5 s" before a
// non-zero exit.
const connectTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentyes-send <text>")
		return 1
	}
	text := strings.Join(args, " ")

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes-send: %v\n", err)
		return 1
	}

	reg, err := registry.Open(cwd, log.New(os.Stderr, "agentyes-send: ", 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes-send: %v\n", err)
		return 1
	}
	defer reg.Close()

	rec, err := reg.FindActiveIPC(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes-send: %v\n", err)
		return 1
	}
	if rec == nil || rec.IPCPath == "" {
		fmt.Fprintln(os.Stderr, "agentyes-send: no active session found in this directory")
		return 1
	}

	if err := ipc.Send(rec.IPCPath, text, connectTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "agentyes-send: %v\n", err)
		return 1
	}
	return 0
}
