package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/m4xw311/hai/agent"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/keyboard"
	"github.com/m4xw311/hai/session"
	"pkt.systems/pslog"
)

// Options describe the terminal hai runs in.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// TTY is the keyboard; when it is not a terminal, Escape and the
	// confirmation prompt are unavailable.
	TTY   *keyboard.TTY
	Color bool
	// Spinner enables "Thinking..." for non-streaming runs.
	Spinner bool
	// Exit terminates the process; os.Exit when nil.
	Exit func(code int)
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent       *agent.Agent
	run         agent.RunConfig
	session     *session.Session
	printer     *Printer
	spinner     *Spinner
	interrupter *keyboard.Interrupter
	stdin       io.Reader
	stdout      io.Writer
	exit        func(code int)
}

// New creates a new Terminal. Every message sent through it is a run with
// the settings of run, recorded in sess.
func New(o Options, run agent.RunConfig, sess *session.Session) *Terminal {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
	if sess == nil {
		sess = session.New("")
	}

	printer := NewPrinter(o.Stdout, o.Stderr, o.Color)
	spinner := NewSpinner(o.Stdout, printer, o.Spinner && !run.Stream)
	onExit := func() {
		spinner.Stop()
		printer.Stopped()
	}

	prompt := &Prompt{TTY: o.TTY, Printer: printer, Exit: o.Exit, OnExit: onExit}
	a := agent.New(hidingWriter{w: o.Stdout, spinner: spinner, printer: printer}, prompt, printer)

	return &Terminal{
		agent:       a,
		run:         run,
		session:     sess,
		printer:     printer,
		spinner:     spinner,
		interrupter: &keyboard.Interrupter{TTY: o.TTY, Exit: o.Exit, OnExit: onExit},
		stdin:       o.Stdin,
		stdout:      o.Stdout,
		exit:        o.Exit,
	}
}

func (t *Terminal) Printer() *Printer { return t.printer }

func (t *Terminal) Session() *session.Session { return t.session }

// Send runs the agent on one user message. Escape stops the run, which is
// reported but is not an error.
func (t *Terminal) Send(ctx context.Context, message string) (*agent.Result, error) {
	t.session.AddMessage(session.Message{Role: session.RoleUser, Content: message})
	t.printer.noteText(false)

	runCtx, disarm := t.interrupter.Arm(ctx)
	defer disarm()

	t.spinner.Start()
	res, err := t.agent.Run(runCtx, t.session, t.run, agent.Callbacks{
		OnBeforeToolUse: t.spinner.Stop,
		OnShowLoading:   t.spinner.Start,
		OnCancel: func() {
			t.spinner.Stop()
			t.printer.Stopped()
		},
	})
	t.spinner.Stop()

	if res != nil && res.State == agent.StateStepBudgetExhausted {
		t.printer.Info(fmt.Sprintf("(stopped after %d steps)", res.Steps))
	}
	if serr := t.session.Save(); serr != nil {
		t.printer.Warn(fmt.Sprintf("failed to save session: %v", serr))
	}
	return res, err
}

// Interactive reads messages until /exit, /quit, Ctrl-C or end of input.
// The conversation is kept across turns; a failed turn is reported and
// the loop continues.
func (t *Terminal) Interactive(ctx context.Context, initial Input) error {
	log := pslog.Ctx(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	stopSigs := make(chan struct{})
	defer close(stopSigs)
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(t.stdout)
			t.printer.Bye()
			t.exit(0)
		case <-stopSigs:
		}
	}()

	if initial.Full != "" {
		t.printer.User(initial.Display)
		if _, err := t.Send(ctx, initial.Full); err != nil {
			t.printer.Error(err.Error())
		}
	}

	reader := bufio.NewReader(t.stdin)
	for {
		fmt.Fprint(t.stdout, t.printer.Prompt())
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrapf(err, "failed to read input")
		}
		eof := err != nil

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "/exit", "/quit":
			t.printer.Bye()
			return nil
		case "":
			if eof {
				fmt.Fprintln(t.stdout)
				t.printer.Bye()
				return nil
			}
			continue
		}

		log.Debug("interactive turn", "messages", len(t.session.Messages))
		if _, err := t.Send(ctx, input); err != nil {
			t.printer.Error(err.Error())
		}
		if eof {
			t.printer.Bye()
			return nil
		}
	}
}
