package tools

import (
	"context"
	"time"

	"github.com/m4xw311/hai/errors"
	"pkt.systems/pslog"
)

const ShellToolName = "shell"

// PreviewLines is how many lines of command output are echoed to the user.
const PreviewLines = 5

// Display shows shell activity to the user. It must not write to stdout.
type Display interface {
	// Command shows a command that runs without a prompt.
	Command(command string)
	// Output shows the preview of a finished command.
	Output(preview string)
}

// ShellTool runs commands the model asks for, after the gate allows them.
type ShellTool struct {
	Gate     *Gate
	Executor Executor
	Cwd      string
	Timeout  time.Duration
	Display  Display

	// Cancel stops the whole run when the user picks cancel.
	Cancel context.CancelFunc
	// BeforeUse fires once per invocation, before anything is shown.
	BeforeUse func()
}

func (t *ShellTool) Name() string { return ShellToolName }

func (t *ShellTool) Description() string {
	return "Execute a shell command in the current directory. Use this when the user needs to run commands, " +
		"check files, build projects, etc. Use commands appropriate for the current OS and shell. " +
		"IMPORTANT: Use non-interactive commands only. Avoid commands that require user input " +
		"(like vim, nano, less, or interactive prompts). Use flags like -y or --yes for auto-confirmation when available."
}

func (t *ShellTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
	}
}

// Execute implements Tool. The returned string is the JSON outcome.
func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return t.Call(ctx, args).JSON(), nil
}

// Call extracts the command argument and invokes the tool.
func (t *ShellTool) Call(ctx context.Context, args map[string]interface{}) Outcome {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		t.beforeUse()
		return Outcome{Error: errors.New("missing or invalid 'command' argument").Error()}
	}
	return t.Invoke(ctx, command)
}

// Invoke gates, executes and previews one command.
func (t *ShellTool) Invoke(ctx context.Context, command string) Outcome {
	t.beforeUse()
	log := pslog.Ctx(ctx).With("tool", ShellToolName)

	if t.Gate.Preapproved(ctx, command) {
		if t.Display != nil {
			t.Display.Command(command)
		}
	} else {
		d := t.Gate.Confirm(ctx, command)
		log.Debug("confirmation", "decision", d.String())
		switch d {
		case DecisionNo:
			return Outcome{Error: msgRejected}
		case DecisionCancel:
			if t.Cancel != nil {
				t.Cancel()
			}
			return Outcome{Error: msgCanceled, Cancelled: true}
		}
	}

	outcome := t.Executor.Execute(ctx, command, t.Cwd, t.Timeout)
	log.Info("command executed", "command", command, "success", outcome.Success)
	if outcome.Output != "" && t.Display != nil {
		t.Display.Output(Preview(outcome.Output, PreviewLines))
	}
	return outcome
}

// CancelledOutcome is recorded for tool calls skipped after a cancel.
func CancelledOutcome() Outcome {
	return Outcome{Error: msgCanceled, Cancelled: true}
}

func (t *ShellTool) beforeUse() {
	if t.BeforeUse != nil {
		t.BeforeUse()
	}
}
