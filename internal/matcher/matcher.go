// Package matcher implements the Match Engine: a rolling regex/substring
// matcher over the tail of the decoded screen that classifies the
// assistant's state as one of {Starting, Idle/Ready, Awaiting-Confirmation,
// Awaiting-Dangerous-Confirmation, Working, Terminated} and emits debounced
// transitions (spec.md §4.5).
package matcher

import (
	"strings"
	"sync"
	"time"

	"github.com/ianremillard/agentyes/internal/profile"
)

// State is one node of the Match Engine's state machine.
type State string

const (
	StateStarting           State = "Starting"
	StateIdleReady          State = "Idle/Ready"
	StateAwaitingConfirm    State = "Awaiting-Confirmation"
	StateAwaitingDangerous  State = "Awaiting-Dangerous-Confirmation"
	StateWorking            State = "Working"
	StateTerminated         State = "Terminated"
)

// tailWindowLines is the minimum number of lines kept in the tail window
// (spec.md §4.5: "~8 KiB or ~50 lines, whichever is larger").
const tailWindowLines = 50

// tailWindowBytes is the minimum byte budget kept in the tail window.
const tailWindowBytes = 8 * 1024

// debounceInterval is how long a new classification must hold before it is
// emitted as a transition, unless confirmed sooner by a second observation.
const debounceInterval = 100 * time.Millisecond

// defaultReadyTimeout is the fallback-to-Ready override described in
// spec.md §9's second Open Question: if readyPatterns never match, the
// engine still promotes Starting → Idle/Ready after this long, so a
// profile with a broken/absent ready pattern cannot deadlock the pre-Ready
// Control-C window forever.
const defaultReadyTimeout = 30 * time.Second

// Transition is one state change emitted by the engine.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Engine is the per-session Match Engine. Safe for concurrent use; Feed is
// expected to be called from a single goroutine (the pipeline's decoder
// stage), but Terminate/MarkReplied/MarkUserResponded may be called from
// others.
type Engine struct {
	mu      sync.Mutex
	profile *profile.Profile

	lines []string // rolling tail window, oldest first

	current        State
	lastTransition time.Time

	pendingTo    State
	pendingSince time.Time
	generation   int

	readyTimeout time.Duration
	readyTimer   *time.Timer

	onTransition func(Transition)
}

// New creates an Engine in the Starting state for the given profile.
// onTransition is invoked (off the caller's goroutine, via time.AfterFunc,
// for debounced transitions; synchronously for Feed-confirmed and
// explicitly-marked ones) once per emitted transition.
func New(p *profile.Profile, onTransition func(Transition)) *Engine {
	e := &Engine{
		profile:        p,
		current:        StateStarting,
		lastTransition: time.Now(),
		onTransition:   onTransition,
		readyTimeout:   defaultReadyTimeout,
	}
	e.readyTimer = time.AfterFunc(e.readyTimeout, e.fireReadyTimeout)
	return e
}

// SetReadyTimeout overrides the fallback-to-Ready duration. Must be called
// before the timer fires; intended for tests.
func (e *Engine) SetReadyTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readyTimeout = d
	if e.readyTimer != nil {
		e.readyTimer.Stop()
	}
	if e.current == StateStarting {
		e.readyTimer = time.AfterFunc(d, e.fireReadyTimeout)
	}
}

func (e *Engine) fireReadyTimeout() {
	e.mu.Lock()
	if e.current != StateStarting {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.apply(StateIdleReady)
}

// Current returns the engine's current state.
func (e *Engine) Current() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Feed appends newLines (already ANSI-stripped, already split) to the tail
// window and re-evaluates classification.
func (e *Engine) Feed(newLines []string) {
	if len(newLines) == 0 {
		return
	}
	e.mu.Lock()
	e.lines = append(e.lines, newLines...)
	// Trim from the front while we exceed both budgets, per spec.md's
	// "whichever is larger": never shrink below 50 lines, and never shrink
	// below ~8KiB once there are more than 50 lines buffered.
	for len(e.lines) > tailWindowLines && tailBytes(e.lines) > tailWindowBytes {
		e.lines = e.lines[1:]
	}
	tail := []byte(strings.Join(e.lines, "\n"))
	current := e.current
	e.mu.Unlock()

	target := classify(e.profile, tail, current)
	if target == "" || target == current {
		return
	}
	e.apply(target)
}

func tailBytes(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}

// classify determines the highest-precedence pattern match on tail.
// Tie-break: dangerous > confirm > ready, regardless of source order
// (spec.md §4.6). Returns "" if nothing matches.
func classify(p *profile.Profile, tail []byte, current State) State {
	if p == nil {
		return ""
	}
	switch {
	case p.MatchDangerous(tail):
		return StateAwaitingDangerous
	case p.MatchConfirm(tail):
		return StateAwaitingConfirm
	case p.MatchReady(tail):
		return StateIdleReady
	}
	return ""
}

// apply runs the debounce protocol for a candidate target state and emits a
// Transition once confirmed.
func (e *Engine) apply(target State) {
	e.mu.Lock()
	if e.current == StateTerminated {
		e.mu.Unlock()
		return
	}
	if target == e.current {
		e.mu.Unlock()
		return
	}

	if e.pendingTo == target {
		// Second consecutive observation: confirmed without waiting out the
		// debounce timer.
		e.generation++
		e.mu.Unlock()
		e.commit(target)
		return
	}

	// New candidate: start (or restart) the debounce window.
	e.pendingTo = target
	e.pendingSince = time.Now()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	time.AfterFunc(debounceInterval, func() {
		e.mu.Lock()
		if e.generation != gen || e.current == StateTerminated {
			e.mu.Unlock()
			return
		}
		stillPending := e.pendingTo
		e.mu.Unlock()
		if stillPending == target {
			e.commit(target)
		}
	})
}

func (e *Engine) commit(target State) {
	e.mu.Lock()
	if e.current == target || e.current == StateTerminated {
		e.mu.Unlock()
		return
	}
	from := e.current
	e.current = target
	e.lastTransition = time.Now()
	e.pendingTo = ""
	if target != StateStarting && e.readyTimer != nil {
		e.readyTimer.Stop()
	}
	cb := e.onTransition
	e.mu.Unlock()

	if cb != nil {
		cb(Transition{From: from, To: target, At: time.Now()})
	}
}

// MarkReplied transitions Awaiting-Confirmation → Working immediately,
// bypassing debounce, once the Auto-Responder has injected its reply
// (spec.md §4.5 diagram: "Awaiting-Confirmation --(reply sent)--> Working").
func (e *Engine) MarkReplied() {
	e.mu.Lock()
	if e.current != StateAwaitingConfirm {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.commit(StateWorking)
}

// MarkUserResponded transitions Awaiting-Dangerous-Confirmation → Working
// immediately once the user has supplied input (spec.md §4.5 diagram:
// "Awaiting-Dangerous-Confirmation --(user input)--> Working").
func (e *Engine) MarkUserResponded() {
	e.mu.Lock()
	if e.current != StateAwaitingDangerous {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.commit(StateWorking)
}

// Terminate forces the terminal state on child exit, from any state.
func (e *Engine) Terminate() {
	e.mu.Lock()
	if e.current == StateTerminated {
		e.mu.Unlock()
		return
	}
	if e.readyTimer != nil {
		e.readyTimer.Stop()
	}
	from := e.current
	e.current = StateTerminated
	e.lastTransition = time.Now()
	e.generation++ // invalidate any in-flight debounce timers
	cb := e.onTransition
	e.mu.Unlock()

	if cb != nil {
		cb(Transition{From: from, To: StateTerminated, At: time.Now()})
	}
}
