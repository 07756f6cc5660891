package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedFansOutToTerminalAndRing(t *testing.T) {
	var term bytes.Buffer
	p := New(&term, nil, nil)

	p.Feed([]byte("hello\n"))
	p.Feed([]byte("world\n"))

	assert.Equal(t, "hello\nworld\n", term.String())
	assert.Equal(t, []string{"hello", "world"}, p.Ring().Lines())
}

func TestFeedAfterTerminateIsDropped(t *testing.T) {
	var term bytes.Buffer
	p := New(&term, nil, nil)

	p.Feed([]byte("before\n"))
	p.Terminate()
	p.Feed([]byte("after\n"))

	assert.Equal(t, "before\n", term.String())
	assert.Equal(t, []string{"before"}, p.Ring().Lines())
}

func TestTerminateFlushesPartialLine(t *testing.T) {
	var term bytes.Buffer
	p := New(&term, nil, nil)

	p.Feed([]byte("partial line no newline"))
	p.Terminate()

	assert.Equal(t, []string{"partial line no newline"}, p.Ring().Lines())
}

func TestRingBufferBoundAcrossManyLines(t *testing.T) {
	var term bytes.Buffer
	p := New(&term, nil, nil)

	for i := 0; i < 1500; i++ {
		p.Feed([]byte("x\n"))
	}

	assert.Equal(t, 1000, p.Ring().Len())
}
