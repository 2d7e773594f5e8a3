package tools

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxOutputBytes is the ceiling on the combined output reported for a command.
const MaxOutputBytes = 50 * 1024

const stderrSeparator = "\n[stderr]\n"

// capture is an io.Writer that keeps at most limit bytes but counts
// everything written to it.
type capture struct {
	mu    sync.Mutex
	buf   []byte
	limit int
	total int
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += len(p)
	if room := c.limit - len(c.buf); room > 0 {
		c.buf = append(c.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (c *capture) snapshot() ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf...), c.total
}

// combineOutput joins stdout and stderr and applies the size ceiling. The
// omitted count is derived from the total bytes written, not from what was
// retained.
func combineOutput(stdout, stderr *capture) string {
	out, outTotal := stdout.snapshot()
	errb, errTotal := stderr.snapshot()

	total := outTotal
	var b strings.Builder
	b.Write(out)
	if errTotal > 0 {
		total += len(stderrSeparator) + errTotal
		b.WriteString(stderrSeparator)
		b.Write(errb)
	}

	combined := b.String()
	if total <= MaxOutputBytes {
		return combined
	}
	if len(combined) > MaxOutputBytes {
		combined = combined[:MaxOutputBytes]
	}
	combined = trimPartialRune(combined)
	return combined + fmt.Sprintf("\n...(output truncated, %d bytes omitted)", total-len(combined))
}

// trimPartialRune drops a multi-byte character cut off at the end of s.
func trimPartialRune(s string) string {
	start := len(s) - 1
	for start > 0 && len(s)-start < utf8.UTFMax && !utf8.RuneStart(s[start]) {
		start--
	}
	if start >= 0 && !utf8.FullRuneInString(s[start:]) {
		return s[:start]
	}
	return s
}

// Preview returns at most maxLines lines of output, followed by a count of
// the lines left out.
func Preview(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... %d more lines", len(lines)-maxLines)
}
