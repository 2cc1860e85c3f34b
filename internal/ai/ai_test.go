package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCaller fails n times, then succeeds.
type scriptedCaller struct {
	failures int
	calls    int
	err      error
}

func (s *scriptedCaller) Call(ctx context.Context, prompt string, model Model) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		if s.err != nil {
			return "", s.err
		}
		return "", &CallError{Model: model.Name, Err: errors.New("transient")}
	}
	return "response", nil
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedCaller{failures: 2}
	r := NewRetrying(inner, 3)

	out, err := r.Call(context.Background(), "p", Model{Name: "codex"})
	require.NoError(t, err)
	assert.Equal(t, "response", out)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_ExhaustsAttempts(t *testing.T) {
	inner := &scriptedCaller{failures: 10}
	r := NewRetrying(inner, 3)

	_, err := r.Call(context.Background(), "p", Model{Name: "codex"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted 3 attempts")
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_NoRetryOnMissingCLI(t *testing.T) {
	inner := &scriptedCaller{failures: 10, err: &CallError{Model: "codex", Err: ErrModelNotFound}}
	r := NewRetrying(inner, 5)

	_, err := r.Call(context.Background(), "p", Model{Name: "codex"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_StopsOnCancelledContext(t *testing.T) {
	inner := &scriptedCaller{failures: 10}
	r := NewRetrying(inner, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Call(ctx, "p", Model{Name: "codex"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCLICaller_EchoCommand(t *testing.T) {
	c := &CLICaller{Timeout: 10 * time.Second}
	model := Model{Name: "cat", Provider: ProviderCLI, Command: []string{"cat"}}

	out, err := c.Call(context.Background(), "hello reviewer\n", model)
	require.NoError(t, err)
	assert.Equal(t, "hello reviewer", out)
}

func TestCLICaller_MissingBinary(t *testing.T) {
	c := NewCLICaller()
	model := Model{Name: "ghost", Command: []string{"definitely-not-a-real-binary-xyz"}}

	_, err := c.Call(context.Background(), "p", model)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestCLICaller_NonZeroExit(t *testing.T) {
	c := NewCLICaller()
	model := Model{Name: "false", Command: []string{"false"}}

	_, err := c.Call(context.Background(), "p", model)
	require.Error(t, err)
	var cerr *CallError
	assert.ErrorAs(t, err, &cerr)
}

func TestCLICaller_EmptyResponse(t *testing.T) {
	c := NewCLICaller()
	model := Model{Name: "true", Command: []string{"true"}}

	_, err := c.Call(context.Background(), "p", model)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestRouter_DispatchesByProvider(t *testing.T) {
	cli := &scriptedCaller{}
	r := &Router{CLI: cli}

	out, err := r.Call(context.Background(), "p", Model{Name: "codex", Provider: ProviderCLI})
	require.NoError(t, err)
	assert.Equal(t, "response", out)

	_, err = r.Call(context.Background(), "p", Model{Name: "api", Provider: ProviderAnthropic})
	assert.Error(t, err) // no anthropic caller configured
}

func TestDetect(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(file string) (string, error) {
		if file == "claude" || file == "gemini" {
			return "/usr/local/bin/" + file, nil
		}
		return "", fmt.Errorf("not found")
	}

	models := Detect()
	require.Len(t, models, 2)
	assert.Equal(t, "claude", models[0].Name)
	assert.Equal(t, []string{"claude", "-p"}, models[0].Command)
	assert.Equal(t, "gemini", models[1].Name)
}

func TestResolve(t *testing.T) {
	m, err := Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, ProviderCLI, m.Provider)
	assert.Equal(t, []string{"claude", "-p"}, m.Command)

	m, err = Resolve("anthropic:claude-haiku-4-5-20251001")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, m.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", m.APIModel)
	assert.Equal(t, "anthropic", m.Name)

	m, err = Resolve("haiku=anthropic:claude-haiku-4-5-20251001")
	require.NoError(t, err)
	assert.Equal(t, "haiku", m.Name)

	m, err = Resolve("local=mycli --prompt-stdin")
	require.NoError(t, err)
	assert.Equal(t, ProviderCLI, m.Provider)
	assert.Equal(t, []string{"mycli", "--prompt-stdin"}, m.Command)

	_, err = Resolve("gpt9000")
	assert.Error(t, err)

	_, err = Resolve("")
	assert.Error(t, err)
}
