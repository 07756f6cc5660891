// Package ringbuffer implements the bounded in-memory tail of decoded
// output lines described in spec.md §3 ("Ring Buffer"). Unlike a
// byte-oriented scrollback buffer, capacity is counted in lines (hard cap
// 1,000), and eviction preserves insertion order of the most recent lines.
package ringbuffer

import "sync"

// Cap is the hard cap on stored lines (spec.md §3, §8 property 1).
const Cap = 1000

// Buffer is a thread-safe bounded queue of decoded lines.
type Buffer struct {
	mu    sync.Mutex
	lines []string
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{lines: make([]string, 0, Cap)}
}

// Append adds line to the buffer, evicting the oldest line if the buffer is
// already at capacity.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= Cap {
		// Shift left by one, dropping the oldest line.
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:len(b.lines)-1]
	}
	b.lines = append(b.lines, line)
}

// Lines returns a copy of the currently buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the number of lines currently stored.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
