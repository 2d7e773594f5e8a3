package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/m4xw311/hai/errors"
	"pkt.systems/pslog"
)

const (
	msgAborted  = "Command aborted by user"
	msgRejected = "User rejected the command"
	msgCanceled = "User cancelled"
	msgNoOutput = "(no output)"

	msgOutputDetached = "\n(output collection stopped, a background process kept the output open)"
)

// waitDelay bounds how long Wait keeps copying output after the process
// group has been killed.
const waitDelay = 2 * time.Second

// Outcome is the result of one shell tool invocation. Its JSON form is the
// tool result the model sees.
type Outcome struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`

	// Cancelled marks an outcome produced by the user cancelling the run.
	Cancelled bool `json:"-"`
}

// JSON returns the serialized outcome.
func (o Outcome) JSON() string {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(data)
}

// Executor runs a command line through the platform shell. It holds no
// state between calls.
type Executor struct{}

// Execute runs command in cwd. Exactly one of natural exit, cancellation of
// ctx, or timeout decides the outcome; a timeout of zero disables the timer.
func (Executor) Execute(ctx context.Context, command, cwd string, timeout time.Duration) Outcome {
	log := pslog.Ctx(ctx).With("command", command)

	if ctx.Err() != nil {
		return Outcome{Error: msgAborted}
	}

	stdout := newCapture(MaxOutputBytes)
	stderr := newCapture(MaxOutputBytes)

	cmd := shellCommand(command)
	cmd.Dir = cwd
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Debug("command failed to start", "err", err)
		return Outcome{Error: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		output := combineOutput(stdout, stderr)
		log.Debug("command finished", "elapsed", time.Since(start), "err", err)
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
			// The shell exited cleanly but a background child still holds
			// its output open.
			return Outcome{Success: true, Output: output + msgOutputDetached}
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return Outcome{Error: fmt.Sprintf("Command exited with code %d", exitErr.ExitCode()), Output: output}
			}
			return Outcome{Error: err.Error(), Output: output}
		}
		if output == "" {
			output = msgNoOutput
		}
		return Outcome{Success: true, Output: output}

	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		log.Debug("command aborted", "elapsed", time.Since(start))
		return Outcome{Error: msgAborted, Output: combineOutput(stdout, stderr)}

	case <-expired:
		killProcessGroup(cmd)
		<-done
		log.Debug("command timed out", "timeout", timeout)
		return Outcome{Error: fmt.Sprintf("Command timed out after %s", timeout), Output: combineOutput(stdout, stderr)}
	}
}
