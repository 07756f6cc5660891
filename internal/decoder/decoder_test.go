package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedSplitsOnNewline(t *testing.T) {
	d := New()
	lines := d.Feed([]byte("hello\nworld\n"))
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestFeedBuffersPartialLine(t *testing.T) {
	d := New()
	lines := d.Feed([]byte("hel"))
	assert.Empty(t, lines)

	lines = d.Feed([]byte("lo\nworld"))
	assert.Equal(t, []string{"hello"}, lines)
	assert.Equal(t, "world", d.Flush())
}

func TestFeedStripsCSI(t *testing.T) {
	d := New()
	lines := d.Feed([]byte("\x1b[2J\x1b[1;1Hhello\x1b[0m\n"))
	assert.Equal(t, []string{"hello"}, lines)
}

func TestFeedStripsOSC(t *testing.T) {
	d := New()
	lines := d.Feed([]byte("\x1b]0;window title\x07hello\n"))
	assert.Equal(t, []string{"hello"}, lines)
}

func TestFeedBareCarriageReturn(t *testing.T) {
	d := New()
	lines := d.Feed([]byte("progress 1\rprogress 2\rprogress 3\n"))
	assert.Equal(t, []string{"progress 1", "progress 2", "progress 3"}, lines)
}

func TestFlushEmptyWhenNoPartial(t *testing.T) {
	d := New()
	d.Feed([]byte("complete\n"))
	assert.Equal(t, "", d.Flush())
}

func TestStripStandalone(t *testing.T) {
	assert.Equal(t, []byte("plain"), Strip([]byte("\x1b[31mplain\x1b[0m")))
}
