package terminal

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/keyboard"
	"github.com/m4xw311/hai/tools"
)

// Prompt asks for command confirmation with single keystrokes. While it
// waits it is the top keyboard handler, so Escape answers the prompt
// instead of interrupting the run.
type Prompt struct {
	TTY     *keyboard.TTY
	Printer *Printer
	// Exit terminates the process on Ctrl-C; os.Exit when nil.
	Exit func(code int)
	// OnExit runs after the terminal is restored and before Exit.
	OnExit func()
}

// Confirm implements tools.Confirmer.
func (p *Prompt) Confirm(ctx context.Context, command string) (tools.Decision, error) {
	p.Printer.Command(command)
	if p.TTY == nil {
		return tools.DecisionCancel, errors.ErrNotTerminal
	}
	fmt.Fprint(p.Printer.err, "  "+p.Printer.confirmLabel())

	decided := make(chan tools.Decision, 1)
	pop, err := p.TTY.Push(func(ev keyboard.Event) {
		if ev.Key == keyboard.KeyCtrlC {
			p.TTY.Restore()
			fmt.Fprintln(p.Printer.err)
			if p.OnExit != nil {
				p.OnExit()
			}
			p.exit(keyboard.ExitInterrupted)
			return
		}
		if d, ok := decide(ev); ok {
			select {
			case decided <- d:
			default:
			}
		}
	})
	if err != nil {
		fmt.Fprintln(p.Printer.err)
		return tools.DecisionCancel, err
	}
	defer pop()

	select {
	case d := <-decided:
		p.showAnswer(d)
		return d, nil
	case <-ctx.Done():
		fmt.Fprintln(p.Printer.err)
		return tools.DecisionCancel, ctx.Err()
	}
}

// decide maps a key to an answer; ok is false for keys that are ignored.
func decide(ev keyboard.Event) (d tools.Decision, ok bool) {
	switch ev.Key {
	case keyboard.KeyEnter:
		return tools.DecisionYes, true
	case keyboard.KeyEscape, keyboard.KeyEOF:
		return tools.DecisionCancel, true
	case keyboard.KeyRune:
		switch ev.Rune {
		case 'y', 'Y':
			return tools.DecisionYes, true
		case 'n', 'N':
			return tools.DecisionNo, true
		case 'a', 'A':
			return tools.DecisionAll, true
		case 'c', 'C':
			return tools.DecisionCancel, true
		}
	}
	return 0, false
}

func (p *Prompt) showAnswer(d tools.Decision) {
	switch d {
	case tools.DecisionYes:
		p.Printer.answer("Yes", color.FgGreen)
	case tools.DecisionNo:
		p.Printer.answer("No", color.FgRed)
	case tools.DecisionAll:
		p.Printer.answer("Yes to All", color.FgYellow)
	case tools.DecisionCancel:
		p.Printer.answer("Cancel", color.FgHiBlack)
	}
}

func (p *Prompt) exit(code int) {
	if p.Exit != nil {
		p.Exit(code)
		return
	}
	os.Exit(code)
}
