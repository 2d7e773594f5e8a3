package keyboard

import (
	"context"
	"os"
	"sync"

	"pkt.systems/pslog"
)

// ExitInterrupted is the process status after Ctrl-C.
const ExitInterrupted = 130

// Interrupter turns Escape into cancellation of the current operation and
// Ctrl-C into process exit.
type Interrupter struct {
	TTY *TTY
	// Exit terminates the process; os.Exit when nil.
	Exit func(code int)
	// OnExit runs after the terminal is restored and before Exit.
	OnExit func()
}

// Arm returns a context that is cancelled when Escape is pressed, and the
// func that stops listening. Without a terminal nothing is listened for.
func (i *Interrupter) Arm(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if i.TTY == nil || !i.TTY.IsTerminal() {
		return ctx, cancel
	}

	var once sync.Once
	pop, err := i.TTY.Push(func(ev Event) {
		switch ev.Key {
		case KeyEscape:
			once.Do(func() {
				pslog.Ctx(ctx).Debug("escape pressed, cancelling")
				cancel()
			})
		case KeyCtrlC:
			i.TTY.Restore()
			if i.OnExit != nil {
				i.OnExit()
			}
			i.exit(ExitInterrupted)
		}
	})
	if err != nil {
		pslog.Ctx(ctx).Warn("keyboard interrupts unavailable", "err", err)
		return ctx, cancel
	}
	return ctx, func() {
		pop()
		cancel()
	}
}

func (i *Interrupter) exit(code int) {
	if i.Exit != nil {
		i.Exit(code)
		return
	}
	os.Exit(code)
}
