// Package ai provides the AI caller boundary: given a rendered prompt and a
// model handle, return reviewer text or fail after bounded retries. Adapters
// exist for local AI CLIs (claude, codex, gemini) and for the Anthropic API.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// Provider selects which adapter serves a model.
type Provider string

const (
	ProviderCLI       Provider = "cli"
	ProviderAnthropic Provider = "anthropic"
)

// Model is an opaque handle for one reviewer backend.
type Model struct {
	Name     string   // participant id, e.g. "claude"
	Provider Provider
	Command  []string // argv for CLI models; prompt is piped on stdin
	APIModel string   // model id for API providers
}

// Caller is the single blocking call contract the protocol core consumes.
type Caller interface {
	Call(ctx context.Context, prompt string, model Model) (string, error)
}

// ErrModelNotFound indicates the model's CLI binary is not installed.
// Retrying cannot help.
var ErrModelNotFound = errors.New("model CLI not found")

// CallError wraps a failed invocation with the model name and any stderr.
type CallError struct {
	Model  string
	Stderr string
	Err    error
}

func (e *CallError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s call failed: %v: %s", e.Model, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s call failed: %v", e.Model, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Retrying wraps a Caller with a bounded retry loop. A missing CLI is not
// retried; everything else is, up to maxAttempts total calls.
type Retrying struct {
	Inner       Caller
	MaxAttempts int
}

// NewRetrying wraps inner with up to maxAttempts attempts (minimum 1).
func NewRetrying(inner Caller, maxAttempts int) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{Inner: inner, MaxAttempts: maxAttempts}
}

func (r *Retrying) Call(ctx context.Context, prompt string, model Model) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		out, err := r.Inner.Call(ctx, prompt, model)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrModelNotFound) || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%s: exhausted %d attempts: %w", model.Name, r.MaxAttempts, lastErr)
}

// Router dispatches a call to the adapter matching the model's provider.
type Router struct {
	CLI       Caller
	Anthropic Caller
}

func (r *Router) Call(ctx context.Context, prompt string, model Model) (string, error) {
	switch model.Provider {
	case ProviderAnthropic:
		if r.Anthropic == nil {
			return "", &CallError{Model: model.Name, Err: errors.New("anthropic caller not configured")}
		}
		return r.Anthropic.Call(ctx, prompt, model)
	default:
		if r.CLI == nil {
			return "", &CallError{Model: model.Name, Err: errors.New("cli caller not configured")}
		}
		return r.CLI.Call(ctx, prompt, model)
	}
}
