package agent

import (
	"io"
	"strings"
)

// Sequencer orders model text on the output sink. When streaming, text is
// written as it arrives; otherwise it is held until the next flush point.
type Sequencer struct {
	w      io.Writer
	stream bool

	buf     strings.Builder
	pending bool // text written since the last flush
	lastNL  bool
}

// NewSequencer returns a sequencer writing to w.
func NewSequencer(w io.Writer, stream bool) *Sequencer {
	return &Sequencer{w: w, stream: stream}
}

// Write adds a text fragment.
func (s *Sequencer) Write(text string) {
	if text == "" {
		return
	}
	if !s.stream {
		s.buf.WriteString(text)
		return
	}
	io.WriteString(s.w, text)
	s.pending = true
	s.lastNL = strings.HasSuffix(text, "\n")
}

// Flush emits held text and ends the output line. Calling it with nothing
// pending writes nothing.
func (s *Sequencer) Flush() {
	if !s.stream {
		if s.buf.Len() == 0 {
			return
		}
		text := s.buf.String()
		s.buf.Reset()
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		io.WriteString(s.w, text)
		return
	}
	if s.pending && !s.lastNL {
		io.WriteString(s.w, "\n")
	}
	s.pending = false
}
