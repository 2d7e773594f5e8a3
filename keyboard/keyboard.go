// Package keyboard owns the terminal's raw key input. Listeners are kept on
// a stack and only the top one receives keys, so a confirmation prompt can
// shadow the interrupt listener of a running agent.
package keyboard

import (
	"io"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/m4xw311/hai/errors"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

type Key int

const (
	KeyRune Key = iota
	KeyEnter
	KeyEscape
	KeyCtrlC
	// KeyOther is any escape sequence (arrows, function keys).
	KeyOther
	// KeyEOF is delivered once when reading fails.
	KeyEOF
)

type Event struct {
	Key  Key
	Rune rune
}

// Handler receives key events on the reader goroutine. It must not block
// and must not pop itself synchronously.
type Handler func(Event)

// source abstracts the terminal so tests can feed keys.
type source interface {
	isTerminal() bool
	makeRaw() (restore func() error, err error)
	open() (cancelreader.CancelReader, error)
}

type TTY struct {
	src source

	// life serializes starting and stopping the reader.
	life sync.Mutex

	mu       sync.Mutex
	handlers []*entry

	reader   cancelreader.CancelReader
	pumpDone chan struct{}

	restoreMu sync.Mutex
	restore   func() error
}

type entry struct {
	h Handler
}

// Stdin returns the keyboard attached to os.Stdin.
func Stdin() *TTY {
	return New(os.Stdin)
}

// New returns the keyboard reading from f.
func New(f *os.File) *TTY {
	return &TTY{src: fileSource{f: f}}
}

func (t *TTY) IsTerminal() bool {
	return t.src.isTerminal()
}

// Push makes h the receiver of key events until the returned pop func is
// called. The first push enters raw mode; the last pop leaves it.
func (t *TTY) Push(h Handler) (pop func(), err error) {
	if !t.src.isTerminal() {
		return nil, errors.ErrNotTerminal
	}

	t.life.Lock()
	defer t.life.Unlock()

	e := &entry{h: h}
	t.mu.Lock()
	first := len(t.handlers) == 0
	t.handlers = append(t.handlers, e)
	t.mu.Unlock()

	if first {
		if err := t.start(); err != nil {
			t.mu.Lock()
			t.handlers = nil
			t.mu.Unlock()
			return nil, err
		}
	}

	var once sync.Once
	return func() { once.Do(func() { t.remove(e) }) }, nil
}

func (t *TTY) remove(e *entry) {
	t.life.Lock()
	defer t.life.Unlock()

	t.mu.Lock()
	for i, h := range t.handlers {
		if h == e {
			t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
			break
		}
	}
	empty := len(t.handlers) == 0
	t.mu.Unlock()

	if empty {
		t.stop()
	}
}

func (t *TTY) start() error {
	restore, err := t.src.makeRaw()
	if err != nil {
		return errors.Wrapf(err, "could not enter raw mode")
	}
	t.restoreMu.Lock()
	t.restore = restore
	t.restoreMu.Unlock()

	r, err := t.src.open()
	if err != nil {
		t.Restore()
		return errors.Wrapf(err, "could not open key reader")
	}
	t.reader = r
	t.pumpDone = make(chan struct{})
	go t.pump(r, t.pumpDone)
	return nil
}

func (t *TTY) stop() {
	if t.reader != nil {
		t.reader.Cancel()
		<-t.pumpDone
		_ = t.reader.Close()
		t.reader = nil
	}
	t.Restore()
}

// Restore puts the terminal back into the mode it had before the first
// push. It is safe to call more than once and from a handler.
func (t *TTY) Restore() {
	t.restoreMu.Lock()
	defer t.restoreMu.Unlock()
	if t.restore != nil {
		_ = t.restore()
		t.restore = nil
	}
}

func (t *TTY) pump(r io.Reader, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range parseKeys(buf[:n]) {
				t.dispatch(ev)
			}
		}
		if err != nil {
			if !errors.Is(err, cancelreader.ErrCanceled) {
				t.dispatch(Event{Key: KeyEOF})
			}
			return
		}
	}
}

func (t *TTY) dispatch(ev Event) {
	t.mu.Lock()
	var h Handler
	if n := len(t.handlers); n > 0 {
		h = t.handlers[n-1].h
	}
	t.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// parseKeys splits one read into events. A read holding only ESC is the
// Escape key; a longer read starting with ESC is an escape sequence.
func parseKeys(b []byte) []Event {
	if len(b) > 0 && b[0] == 0x1b {
		if len(b) == 1 {
			return []Event{{Key: KeyEscape}}
		}
		return []Event{{Key: KeyOther}}
	}
	var events []Event
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch r {
		case '\r', '\n':
			events = append(events, Event{Key: KeyEnter})
		case 0x03:
			events = append(events, Event{Key: KeyCtrlC})
		case 0x1b:
			events = append(events, Event{Key: KeyEscape})
		default:
			events = append(events, Event{Key: KeyRune, Rune: r})
		}
	}
	return events
}

type fileSource struct {
	f *os.File
}

func (s fileSource) isTerminal() bool {
	return term.IsTerminal(int(s.f.Fd()))
}

func (s fileSource) makeRaw() (func() error, error) {
	fd := int(s.f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	// Raw mode also disables output processing; streamed text still needs
	// "\n" to return the carriage.
	keepOutputProcessing(fd)
	return func() error { return term.Restore(fd, state) }, nil
}

func (s fileSource) open() (cancelreader.CancelReader, error) {
	return cancelreader.NewReader(s.f)
}
