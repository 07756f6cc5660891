// Package decoder turns a stream of raw PTY byte chunks into decoded text
// lines: ANSI CSI/OSC escape sequences stripped, split on newline/carriage
// return, with a partial trailing line buffered until the next chunk
// (spec.md §4.4).
package decoder

import "regexp"

// ansiRe matches CSI sequences (ESC [ ... letter) and OSC sequences
// (ESC ] ... BEL or ESC \). This covers the escape sequences assistants
// commonly emit for cursor movement, color, and terminal titles.
var ansiRe = regexp.MustCompile(
	"\x1b\\[[0-9;?]*[a-zA-Z]" + // CSI
		"|\x1b\\][^\x07\x1b]*(\x07|\x1b\\\\)" + // OSC
		"|\x1b[()][A-Za-z0-9]" + // charset designators
		"|\x1b[=>]", // keypad mode
)

// Decoder is a stateful line decoder; feed it chunks in PTY read order.
type Decoder struct {
	partial []byte
}

// New returns an empty Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Feed strips escape sequences from chunk and returns any complete lines it
// produced, in order. Text after the last newline is buffered and prefixed
// to the next Feed call's output.
func (d *Decoder) Feed(chunk []byte) []string {
	stripped := ansiRe.ReplaceAll(chunk, nil)
	buf := append(d.partial, stripped...)

	var lines []string
	start := 0
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			end := i
			if end > start && buf[end-1] == '\r' {
				end-- // CRLF: the CR belongs to the line break, not the line
			}
			lines = append(lines, string(buf[start:end]))
			start = i + 1
		case '\r':
			// Treat a bare \r (not immediately followed by \n) as a line
			// break too, since screen redraws commonly use \r alone.
			if i+1 < len(buf) && buf[i+1] == '\n' {
				continue
			}
			lines = append(lines, string(buf[start:i]))
			start = i + 1
		}
	}

	if start < len(buf) {
		d.partial = append([]byte(nil), buf[start:]...)
	} else {
		d.partial = nil
	}
	return lines
}

// Flush returns any buffered partial line (without a trailing newline) and
// clears it. Called at session teardown so the final partial line is not
// silently dropped from the line log.
func (d *Decoder) Flush() string {
	if len(d.partial) == 0 {
		return ""
	}
	s := string(d.partial)
	d.partial = nil
	return s
}

// Strip removes ANSI escape sequences from p without any line buffering.
// Used by the Match Engine's tail window, which only cares about the
// rendered text, not line boundaries.
func Strip(p []byte) []byte {
	return ansiRe.ReplaceAll(p, nil)
}
