package ai

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single CLI invocation. AI CLIs answer in
// minutes, not hours; anything longer is treated as a hang.
const DefaultCallTimeout = 10 * time.Minute

// CLICaller invokes a local AI CLI as a subprocess, piping the prompt on
// stdin and reading the response from stdout.
type CLICaller struct {
	Timeout time.Duration
}

// NewCLICaller returns a CLICaller with the default per-call timeout.
func NewCLICaller() *CLICaller {
	return &CLICaller{Timeout: DefaultCallTimeout}
}

func (c *CLICaller) Call(ctx context.Context, prompt string, model Model) (string, error) {
	if len(model.Command) == 0 {
		return "", &CallError{Model: model.Name, Err: errors.New("no command configured")}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, model.Command[0], model.Command[1:]...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &CallError{Model: model.Name, Err: ErrModelNotFound}
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return "", &CallError{Model: model.Name, Err: context.DeadlineExceeded}
		}
		return "", &CallError{
			Model:  model.Name,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	response := strings.TrimSpace(stdout.String())
	if response == "" {
		return "", &CallError{Model: model.Name, Err: errors.New("empty response")}
	}
	return response, nil
}
