package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/hai/config"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/llm"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"pkt.systems/pslog"
)

type State int

const (
	StateRunning State = iota
	StateCompleted
	StateStepBudgetExhausted
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStepBudgetExhausted:
		return "step_budget_exhausted"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Callbacks are optional hooks into a run.
type Callbacks struct {
	// OnBeforeToolUse fires once per shell invocation, before the command is
	// shown or confirmed.
	OnBeforeToolUse func()
	// OnShowLoading fires when tool results have been recorded and the next
	// model step starts.
	OnShowLoading func()
	OnError       func(err error)
	OnCancel      func()
}

// RunConfig holds the settings of one run.
type RunConfig struct {
	Client          llm.LLMClient
	MaxSteps        int
	Timeout         time.Duration
	AutoConfirm     bool
	AllowedCommands []string
	Cwd             string
	Stream          bool
	Options         llm.Options
	// DisableTools runs a single plain generation.
	DisableTools bool
}

type Result struct {
	State State
	// Text is the text of the last model step.
	Text  string
	Steps int
}

// Agent runs conversations against a model, executing the shell commands it
// asks for once the user allows them.
type Agent struct {
	Output    io.Writer
	Confirmer tools.Confirmer
	Display   tools.Display
	Executor  tools.Executor

	// System returns the preamble sent with every tool-enabled run.
	// SystemContext is used when nil.
	System func() string
}

// New creates an agent writing model text to out.
func New(out io.Writer, c tools.Confirmer, d tools.Display) *Agent {
	return &Agent{Output: out, Confirmer: c, Display: d}
}

// Run drives the model until it answers without tool calls, the step budget
// is spent, the user cancels or the model fails. History in sess is extended
// in place. Cancellation is not an error.
func (a *Agent) Run(ctx context.Context, sess *session.Session, cfg RunConfig, cb Callbacks) (*Result, error) {
	if cfg.Client == nil {
		return nil, errors.New("no model client configured")
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = config.DefaultMaxSteps
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := pslog.Ctx(ctx).With("run", uuid.NewString()[:8])

	out := a.Output
	if out == nil {
		out = io.Discard
	}
	seq := NewSequencer(out, cfg.Stream)

	shell := &tools.ShellTool{
		Gate:      tools.NewGate(a.Confirmer, cfg.AutoConfirm, cfg.AllowedCommands),
		Executor:  a.Executor,
		Cwd:       cfg.Cwd,
		Timeout:   cfg.Timeout,
		Display:   a.Display,
		Cancel:    cancel,
		BeforeUse: cb.OnBeforeToolUse,
	}

	var available []tools.Tool
	system := sess.SystemPrompt()
	if !cfg.DisableTools {
		available = []tools.Tool{shell}
		system = mergeSystem(a.systemContext(), system)
	}

	res := &Result{State: StateRunning}
	finish := func(state State, err error) (*Result, error) {
		seq.Flush()
		res.State = state
		log.Debug("run finished", "state", state.String(), "steps", res.Steps)
		switch state {
		case StateCancelled:
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
		case StateErrored:
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return res, err
		}
		return res, nil
	}

	for {
		res.Steps++
		log.Debug("model step", "step", res.Steps, "messages", len(sess.Messages))

		req := &llm.Request{
			System:   system,
			Messages: sess.Conversation(),
			Tools:    available,
			Stream:   cfg.Stream,
			Options:  cfg.Options,
		}
		msg := session.Message{Role: session.RoleAssistant}
		var text strings.Builder
		var stepErr error
		for ev, err := range cfg.Client.Chat(ctx, req) {
			if err != nil {
				stepErr = err
				break
			}
			switch ev.Kind {
			case llm.EventText:
				text.WriteString(ev.Text)
				seq.Write(ev.Text)
			case llm.EventToolCall:
				msg.ToolCalls = append(msg.ToolCalls, ev.ToolCall)
			case llm.EventReasoning:
				msg.Reasoning = append(msg.Reasoning, ev.Reasoning)
			}
		}
		if ctx.Err() != nil {
			log.Debug("run cancelled during model step", "step", res.Steps)
			return finish(StateCancelled, nil)
		}
		if stepErr != nil {
			log.Warn("model step failed", "step", res.Steps, "err", stepErr)
			return finish(StateErrored, errors.Wrapf(stepErr, "model request failed"))
		}

		msg.Content = text.String()
		res.Text = msg.Content
		if cfg.DisableTools {
			msg.ToolCalls = nil
		}
		sess.AddMessage(msg)

		if len(msg.ToolCalls) == 0 {
			return finish(StateCompleted, nil)
		}

		stopped := false
		for _, call := range msg.ToolCalls {
			seq.Flush()
			var outcome tools.Outcome
			switch {
			case stopped || ctx.Err() != nil:
				outcome = tools.CancelledOutcome()
			case call.Name != tools.ShellToolName:
				log.Warn("unknown tool requested", "tool", call.Name)
				outcome = tools.Outcome{Error: fmt.Sprintf("unknown tool %q", call.Name)}
			default:
				outcome = shell.Call(ctx, call.Args)
			}
			if outcome.Cancelled {
				stopped = true
			}
			sess.AddMessage(session.Message{
				Role:      session.RoleTool,
				Content:   outcome.JSON(),
				ToolCalls: []session.ToolCall{call},
				IsError:   !outcome.Success,
			})
		}
		if stopped || ctx.Err() != nil {
			return finish(StateCancelled, nil)
		}

		if res.Steps >= maxSteps {
			log.Warn("step budget exhausted", "steps", res.Steps)
			return finish(StateStepBudgetExhausted, nil)
		}
		if cb.OnShowLoading != nil {
			cb.OnShowLoading()
		}
	}
}

func (a *Agent) systemContext() string {
	if a.System != nil {
		return a.System()
	}
	return SystemContext()
}
