package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Printer formats everything hai shows besides model text. Side-channel
// output (commands, previews, prompts, errors) goes to stderr so it never
// ends up in a pipe.
type Printer struct {
	out   io.Writer
	err   io.Writer
	color bool

	mu sync.Mutex
	// textEnded is set when the last thing shown was model text that ended
	// its line.
	textEnded bool
}

func NewPrinter(stdout, stderr io.Writer, colorEnabled bool) *Printer {
	p := &Printer{color: colorEnabled}
	p.out = noting{w: stdout, p: p}
	p.err = noting{w: stderr, p: p}
	return p
}

// noting forgets the end of model text once the printer writes anything.
type noting struct {
	w io.Writer
	p *Printer
}

func (n noting) Write(b []byte) (int, error) {
	n.p.noteText(false)
	return n.w.Write(b)
}

// noteText records whether model text written to stdout ended its line.
func (p *Printer) noteText(ended bool) {
	p.mu.Lock()
	p.textEnded = ended
	p.mu.Unlock()
}

func (p *Printer) lineEnded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textEnded
}

func (p *Printer) paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if p.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p *Printer) gray(s string) string { return p.paint(s, color.FgHiBlack) }

// Command shows a command about to run.
func (p *Printer) Command(command string) {
	fmt.Fprintln(p.err, p.paint("▶ ", color.FgCyan)+p.paint(command, color.FgYellow))
}

// Output shows the preview of a finished command between blank lines.
func (p *Printer) Output(preview string) {
	fmt.Fprintln(p.err)
	fmt.Fprintln(p.err, p.gray(preview))
	fmt.Fprintln(p.err)
}

func (p *Printer) confirmLabel() string {
	return p.paint("Execute? ", color.FgBlue) +
		"(" + p.paint("Y", color.Bold) + p.gray("es") +
		"/n" + p.gray("o") +
		"/a" + p.gray("ll") +
		"/c" + p.gray("ancel") + ") "
}

func (p *Printer) answer(label string, attr color.Attribute) {
	fmt.Fprintln(p.err, p.paint(label, attr))
}

func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.err, p.paint("Error: "+msg, color.FgRed))
}

func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.err, p.paint("Warning: "+msg, color.FgYellow))
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.out, p.gray(msg))
}

// Stopped reports an interrupted run, on a line of its own below any model
// text.
func (p *Printer) Stopped() {
	if !p.lineEnded() {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintln(p.out, p.gray("(stopped)"))
}

func (p *Printer) Bye() {
	fmt.Fprintln(p.out, p.gray("Bye!"))
}

// User echoes a message sent on the user's behalf.
func (p *Printer) User(msg string) {
	fmt.Fprintln(p.out, p.paint("> "+msg, color.FgGreen))
}

// Prompt is the interactive input prompt.
func (p *Printer) Prompt() string {
	return p.paint("> ", color.FgGreen)
}

// Welcome is printed after the default configuration was written.
func (p *Printer) Welcome(configPath string) {
	fmt.Fprintln(p.out, p.paint("Welcome to hai!", color.FgYellow))
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "A configuration file has been created at:")
	fmt.Fprintln(p.out, p.paint("  "+configPath, color.FgCyan))
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Please edit the configuration file to set your API key.")
	fmt.Fprintln(p.out)
	p.envTip(p.out)
}

// NoAPIKey explains how to configure the key of profile.
func (p *Printer) NoAPIKey(profile, configPath string) {
	fmt.Fprintln(p.err, p.paint("No API key configured for profile: "+profile, color.FgRed))
	fmt.Fprintln(p.err)
	fmt.Fprintln(p.err, "Please set your API key in the configuration file:")
	fmt.Fprintln(p.err, p.paint("  "+configPath, color.FgCyan))
	fmt.Fprintln(p.err)
	p.envTip(p.err)
}

func (p *Printer) envTip(w io.Writer) {
	fmt.Fprintln(w, p.gray("Tip: Use $ENV_VAR syntax to reference environment variables:"))
	fmt.Fprintln(w, p.gray("  api_key: $OPENAI_API_KEY"))
	fmt.Fprintln(w)
}
