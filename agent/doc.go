// Package agent provides the core agent loop of hai.
//
// An Agent sends the conversation held in a session.Session to an
// llm.LLMClient, writes the model's text through a Sequencer, and executes
// the shell tool calls the model makes after the user allows them. The
// terminal front end lives in agent/terminal; this package does no terminal
// handling of its own.
//
// # Usage
//
//	a := agent.New(os.Stdout, confirmer, display)
//	res, err := a.Run(ctx, sess, agent.RunConfig{
//	    Client:   client,
//	    MaxSteps: 10,
//	    Timeout:  time.Minute,
//	    Stream:   true,
//	}, agent.Callbacks{
//	    OnCancel: func() { fmt.Println("(stopped)") },
//	})
//
// # Steps
//
// Every model call is a step. Text is written as it arrives when streaming,
// and at the next flush point otherwise: before each tool invocation and
// when the run ends. Tool calls are executed after their step's response is
// complete, in the order the model issued them, and their outcomes are
// appended to the history as tool messages.
//
// A run ends in one of four states:
//
//   - StateCompleted: the model answered without tool calls
//   - StateStepBudgetExhausted: RunConfig.MaxSteps model calls were made
//   - StateCancelled: the context was cancelled or the user chose cancel
//   - StateErrored: the model call failed; the error is returned
//
// # Confirmation
//
// Each run builds a fresh tools.Gate, so answering "all" to a prompt only
// covers the rest of that run. RunConfig.AutoConfirm approves everything,
// and RunConfig.AllowedCommands approves matching commands without asking.
//
// # Callbacks
//
// Callbacks let the front end keep its spinner in step with the loop:
// OnBeforeToolUse fires before a command is shown, OnShowLoading when the
// next step begins.
package agent
