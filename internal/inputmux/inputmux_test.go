package inputmux

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ianremillard/agentyes/internal/matcher"
)

type fakeWriter struct {
	mu      sync.Mutex
	written [][]byte
}

func (f *fakeWriter) write(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
}

func (f *fakeWriter) all() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, w := range f.written {
		out = append(out, w...)
	}
	return out
}

func TestPreReadyControlCAborts(t *testing.T) {
	fw := &fakeWriter{}
	aborted := false
	m := New(fw.write, nil, func() { aborted = true })

	m.FeedTerminal([]byte{0x03})

	assert.True(t, aborted)
	assert.Empty(t, fw.all())
}

func TestPostReadyControlCPassesThrough(t *testing.T) {
	fw := &fakeWriter{}
	aborted := false
	m := New(fw.write, nil, func() { aborted = true })

	m.NotifyTransition(matcher.Transition{To: matcher.StateIdleReady})
	m.FeedTerminal([]byte{0x03})

	assert.False(t, aborted)
	assert.Equal(t, []byte{0x03}, fw.all())
}

func TestFeedIPCWritesThrough(t *testing.T) {
	fw := &fakeWriter{}
	m := New(fw.write, nil, nil)

	m.FeedIPC([]byte("do the thing\r"))

	assert.Equal(t, "do the thing\r", string(fw.all()))
}

func TestInjectAutoResponseWritesThrough(t *testing.T) {
	fw := &fakeWriter{}
	m := New(fw.write, nil, nil)

	m.InjectAutoResponse([]byte("\n"))

	assert.Equal(t, "\n", string(fw.all()))
}

func TestOtherBytesDoNotAbort(t *testing.T) {
	fw := &fakeWriter{}
	aborted := false
	m := New(fw.write, nil, func() { aborted = true })

	m.FeedTerminal([]byte("hello"))

	assert.False(t, aborted)
	assert.Equal(t, "hello", string(fw.all()))
}
