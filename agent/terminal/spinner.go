package terminal

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows "Thinking..." while a non-streaming run waits on the model.
// A disabled spinner ignores Start.
type Spinner struct {
	w       io.Writer
	printer *Printer
	enabled bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSpinner(w io.Writer, p *Printer, enabled bool) *Spinner {
	return &Spinner{w: w, printer: p, enabled: enabled}
}

// Start shows the spinner. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	if s == nil || !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.draw(0)
	go s.spin(s.stop, s.done)
}

// Stop clears the spinner line.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	fmt.Fprint(s.w, "\r\x1b[K")
}

func (s *Spinner) spin(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	for i := 1; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.draw(i)
		}
	}
}

func (s *Spinner) draw(frame int) {
	fmt.Fprint(s.w, "\r"+s.printer.gray(spinnerFrames[frame%len(spinnerFrames)]+" Thinking..."))
}

// hidingWriter stops the spinner before model text is written to the sink
// and tells the printer where the text left the cursor.
type hidingWriter struct {
	w       io.Writer
	spinner *Spinner
	printer *Printer
}

func (h hidingWriter) Write(p []byte) (int, error) {
	h.spinner.Stop()
	n, err := h.w.Write(p)
	if h.printer != nil && len(p) > 0 {
		h.printer.noteText(p[len(p)-1] == '\n')
	}
	return n, err
}
