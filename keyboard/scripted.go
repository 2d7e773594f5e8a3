package keyboard

import (
	"io"
	"sync"

	"github.com/muesli/cancelreader"
)

// Scripted is an in-memory terminal. Keys typed into it reach the TTY's
// handlers as if they came from a real keyboard, and it counts how often
// raw mode was entered and restored.
type Scripted struct {
	terminal bool
	keys     chan []byte

	mu       sync.Mutex
	raw      int
	restored int
}

// NewScripted returns a TTY reading from a Scripted keyboard. With terminal
// false the TTY behaves like redirected input.
func NewScripted(terminal bool) (*TTY, *Scripted) {
	s := &Scripted{terminal: terminal, keys: make(chan []byte, 16)}
	return &TTY{src: s}, s
}

// Type delivers keys as one read.
func (s *Scripted) Type(keys string) {
	s.keys <- []byte(keys)
}

// Close ends the input; the reader reports EOF.
func (s *Scripted) Close() {
	close(s.keys)
}

// Counts reports how often raw mode was entered and restored.
func (s *Scripted) Counts() (raw, restored int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, s.restored
}

func (s *Scripted) isTerminal() bool { return s.terminal }

func (s *Scripted) makeRaw() (func() error, error) {
	s.mu.Lock()
	s.raw++
	s.mu.Unlock()
	return func() error {
		s.mu.Lock()
		s.restored++
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *Scripted) open() (cancelreader.CancelReader, error) {
	return &scriptedReader{keys: s.keys, cancel: make(chan struct{})}, nil
}

type scriptedReader struct {
	keys   chan []byte
	cancel chan struct{}
	once   sync.Once
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	select {
	case b, ok := <-r.keys:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-r.cancel:
		return 0, cancelreader.ErrCanceled
	}
}

func (r *scriptedReader) Cancel() bool {
	r.once.Do(func() { close(r.cancel) })
	return true
}

func (r *scriptedReader) Close() error { return nil }
