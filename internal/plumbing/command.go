package plumbing

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError reports a subprocess that exited non-zero, keeping enough
// of its output to be useful in job logs and sysadmin mail.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited %d", strings.Join(e.Args, " "), e.ExitCode)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.TrimSpace(string(e.Stderr))
	}
	return msg
}

// Command runs an external helper and returns its stdout. A non-zero
// exit becomes a *CommandError carrying both output streams.
func Command(ctx context.Context, args ...string) ([]byte, error) {
	return CommandInput(ctx, "", args...)
}

// CommandInput runs an external helper feeding input on stdin. Pass
// secrets via Password.Reveal at the call site; never on the argv.
func CommandInput(ctx context.Context, input string, args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", args[0], err)
		}
		return stdout.Bytes(), &CommandError{
			Args:     args,
			ExitCode: exitCode,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}
	}
	return stdout.Bytes(), nil
}
