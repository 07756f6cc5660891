// Package pipeline fans PTY output out to the user's terminal, the raw log,
// the line-decoded log + Match Engine, and the in-memory ring buffer
// (spec.md §4.4). Delivery to all downstream sinks preserves PTY read
// order; after termination, further writes are dropped.
package pipeline

import (
	"io"
	"sync"

	"github.com/ianremillard/agentyes/internal/decoder"
	"github.com/ianremillard/agentyes/internal/logsink"
	"github.com/ianremillard/agentyes/internal/matcher"
	"github.com/ianremillard/agentyes/internal/ringbuffer"
)

// Pipeline is the pure fan-out operator described in spec.md §4.4.
type Pipeline struct {
	mu         sync.Mutex
	terminal   io.Writer
	sinks      *logsink.Sinks
	dec        *decoder.Decoder
	ring       *ringbuffer.Buffer
	engine     *matcher.Engine
	terminated bool
}

// New wires a Pipeline. terminal is typically os.Stdout; sinks and engine
// may be nil in tests that only exercise a subset of the fan-out.
func New(terminal io.Writer, sinks *logsink.Sinks, engine *matcher.Engine) *Pipeline {
	return &Pipeline{
		terminal: terminal,
		sinks:    sinks,
		dec:      decoder.New(),
		ring:     ringbuffer.New(),
		engine:   engine,
	}
}

// Ring returns the pipeline's ring buffer, for retrospective reads.
func (p *Pipeline) Ring() *ringbuffer.Buffer { return p.ring }

// Feed delivers one PTY byte chunk to every downstream sink, in order.
func (p *Pipeline) Feed(chunk []byte) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.terminal != nil {
		p.terminal.Write(chunk)
	}
	if p.sinks != nil && p.sinks.Raw != nil {
		p.sinks.Raw.Write(chunk)
	}

	lines := p.dec.Feed(chunk)
	for _, line := range lines {
		p.ring.Append(line)
		if p.sinks != nil {
			p.sinks.WriteLine(line)
		}
	}
	if p.engine != nil && len(lines) > 0 {
		p.engine.Feed(lines)
	}
}

// Terminate flushes any buffered partial line to the sinks/ring buffer and
// closes the pipeline to further writes. Safe to call once, from the
// PTY Driver's on_exit callback.
func (p *Pipeline) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.mu.Unlock()

	if trailing := p.dec.Flush(); trailing != "" {
		p.ring.Append(trailing)
		if p.sinks != nil {
			p.sinks.WriteLine(trailing)
		}
	}
}
