package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/keyboard"
	"golang.org/x/term"
	"pkt.systems/psi"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	return execute(ctx, os.Args[1:], stdio())
}

// streams are the process's standard streams and what is known about them.
type streams struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	tty       *keyboard.TTY
	stdinTTY  bool
	stdoutTTY bool
	exit      func(code int)
}

func stdio() streams {
	tty := keyboard.Stdin()
	return streams{
		in:        os.Stdin,
		out:       os.Stdout,
		err:       os.Stderr,
		tty:       tty,
		stdinTTY:  tty.IsTerminal(),
		stdoutTTY: term.IsTerminal(int(os.Stdout.Fd())),
		exit:      os.Exit,
	}
}

// exitCode ends the command with a status after the user has been told why.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func execute(ctx context.Context, args []string, s streams) int {
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	newErrorPrinter(s).Error(err.Error())
	return 1
}
