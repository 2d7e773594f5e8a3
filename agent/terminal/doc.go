// Package terminal implements the command-line interaction mode of hai.
//
// A Terminal sends messages to the agent and presents the run: model text
// on stdout, and commands, output previews, confirmation prompts and errors
// on stderr, so piping hai's output captures only the answer.
//
// # Usage
//
//	term := terminal.New(terminal.Options{
//	    TTY:     keyboard.Stdin(),
//	    Color:   settings.Color,
//	    Spinner: stdoutIsTerminal,
//	}, runConfig, sess)
//
//	// single message
//	_, err := term.Send(ctx, input.Full)
//
//	// or a conversation
//	err = term.Interactive(ctx, input)
//
// # Keys
//
// While a run is in progress Escape stops it and Ctrl-C exits. The
// confirmation prompt reads single keys:
//
//   - Enter, y: run the command
//   - n: reject it; the model is told and continues
//   - a: run this and every later command of the run
//   - c, Escape: stop the run
//
// # Interactive mode
//
// The conversation is kept across turns. /exit and /quit leave, as does
// Ctrl-C at the prompt. With a named session the history is saved after
// every turn.
//
// # Input
//
// ProcessInput merges the message with piped stdin and -f files and fills
// the result into a prompt template from the configuration. Templates
// either contain {{input}} or get the input appended.
package terminal
