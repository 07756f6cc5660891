// agentyes wraps an interactive AI coding assistant in a PTY, auto-answers
// its routine confirmation prompts, and mirrors the terminal for the human
// at the keyboard.
//
// Usage:
//
//	agentyes [-root <dir>] [-prompt <text>] [-verbose] <assistant> [-- assistant-args...]
//	agentyes logs <pid>
//
// -root points at the directory of per-assistant profile YAML files
// (env: AGENTYES_ROOT); each profile is named "<assistant>.yaml".
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ianremillard/agentyes/internal/logsink"
	"github.com/ianremillard/agentyes/internal/profile"
	"github.com/ianremillard/agentyes/internal/supervisor"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "logs" {
		os.Exit(cmdLogs(os.Args[2:]))
	}
	os.Exit(cmdRun(os.Args[1:]))
}

func defaultRoot() string {
	if env := os.Getenv("AGENTYES_ROOT"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentyes-profiles"
	}
	return filepath.Join(home, ".agentyes", "profiles")
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("agentyes", flag.ContinueOnError)
	root := fs.String("root", defaultRoot(), "assistant profile directory (env: AGENTYES_ROOT)")
	promptFlag := fs.String("prompt", "", "initial prompt to pass to the assistant")
	verbose := fs.Bool("verbose", false, "accepted but has no effect; the per-session debug log is always written")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: agentyes [-root dir] [-prompt text] [-verbose] <assistant> [-- assistant-args...]")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	remaining := fs.Args()
	if len(remaining) < 1 {
		fs.Usage()
		return 1
	}
	name := remaining[0]
	extra := remaining[1:]

	profilePath := filepath.Join(*root, name+".yaml")
	p, err := profile.Load(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: loading profile for %q: %v\n", name, err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: %v\n", err)
		return 1
	}

	argv := append(append([]string{}, p.ArgvPrefix...), extra...)
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "agentyes: profile %q has no argv-prefix and no assistant args given\n", name)
		return 1
	}

	return supervisor.Run(supervisor.Config{
		AssistantName: name,
		Argv:          argv,
		CWD:           cwd,
		Prompt:        *promptFlag,
		Verbose:       *verbose,
		Profile:       p,
	})
}

// cmdLogs implements the supplemented "agentyes logs <pid>" subcommand
// (SPEC_FULL.md §5): read-only retrieval of a session's line log, for a
// peer that holds a pid (spec.md §6 "Exposed to peers").
func cmdLogs(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentyes logs <pid>")
		return 1
	}
	pid := args[0]

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: %v\n", err)
		return 1
	}

	path := filepath.Join(logsink.Root(cwd), "logs", pid+".lines.log")
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: no log for pid %s: %v\n", pid, err)
		return 1
	}
	defer f.Close()

	if _, err := io.Copy(os.Stdout, f); err != nil {
		fmt.Fprintf(os.Stderr, "agentyes: %v\n", err)
		return 1
	}
	return 0
}
