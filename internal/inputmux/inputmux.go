// Package inputmux merges the three input sources described in spec.md
// §4.7 — terminal stdin, out-of-band IPC frames, and Auto-Responder
// injections — into a single ordered write stream to the PTY, and
// implements the pre-Ready Control-C abort policy.
package inputmux

import (
	"sync"
	"sync/atomic"

	"github.com/ianremillard/agentyes/internal/matcher"
)

const ctrlC = 0x03

// Mux serializes writes from all three input sources to a single PTY
// write function. Each source's internal byte order is preserved; the
// interleaving between sources is whatever order their callers happen to
// call in (spec.md §4.7 / §5 ordering guarantees).
type Mux struct {
	mu    sync.Mutex
	write func([]byte)

	engine *matcher.Engine

	everReady atomic.Bool

	// onPreReadyAbort is invoked exactly once if Control-C arrives before
	// the engine first reaches Idle/Ready. The caller is responsible for
	// printing the abort message, signaling the child, and exiting.
	onPreReadyAbort func()
	abortOnce       sync.Once
}

// New creates a Mux that writes to write and watches engine for the
// first Idle/Ready transition to know when Control-C should stop being
// intercepted.
func New(write func([]byte), engine *matcher.Engine, onPreReadyAbort func()) *Mux {
	m := &Mux{write: write, engine: engine, onPreReadyAbort: onPreReadyAbort}
	if engine != nil && engine.Current() != matcher.StateStarting {
		m.everReady.Store(true)
	}
	return m
}

// NotifyTransition should be called for every Match Engine transition so
// the mux can latch "ever reached Idle/Ready".
func (m *Mux) NotifyTransition(tr matcher.Transition) {
	if tr.To == matcher.StateIdleReady {
		m.everReady.Store(true)
	}
}

// FeedTerminal handles one chunk of raw bytes read from the local
// terminal's stdin (already in raw mode). Before the engine's first
// Idle/Ready transition, a Control-C byte aborts the supervisor instead of
// reaching the child (spec.md §4.7). Any byte arriving while the engine is
// Awaiting-Dangerous-Confirmation marks the dangerous prompt as
// user-answered.
func (m *Mux) FeedTerminal(data []byte) {
	if !m.everReady.Load() {
		for _, b := range data {
			if b == ctrlC {
				if m.onPreReadyAbort != nil {
					m.abortOnce.Do(m.onPreReadyAbort)
				}
				return
			}
		}
	}

	if m.engine != nil && len(data) > 0 && m.engine.Current() == matcher.StateAwaitingDangerous {
		m.engine.MarkUserResponded()
	}

	m.writeThrough(data)
}

// FeedIPC writes one out-of-band frame (already including its trailing
// "\r", per spec.md §6) to the PTY.
func (m *Mux) FeedIPC(frame []byte) {
	m.writeThrough(frame)
}

// InjectAutoResponse writes the Auto-Responder's reply keys to the PTY and
// marks the Match Engine's Awaiting-Confirmation prompt as answered.
func (m *Mux) InjectAutoResponse(keys []byte) {
	m.writeThrough(keys)
	if m.engine != nil {
		m.engine.MarkReplied()
	}
}

func (m *Mux) writeThrough(data []byte) {
	if len(data) == 0 || m.write == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(data)
}
