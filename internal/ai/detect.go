package ai

import (
	"fmt"
	"os/exec"
	"strings"
)

// knownCLIs maps participant names to the argv that makes each AI CLI read a
// prompt from stdin and print its answer to stdout.
var knownCLIs = map[string][]string{
	"claude": {"claude", "-p"},
	"codex":  {"codex", "exec"},
	"gemini": {"gemini", "-p"},
}

// lookPath is replaceable in tests.
var lookPath = exec.LookPath

// Detect probes PATH for known AI CLIs and returns the available models in a
// stable order.
func Detect() []Model {
	var models []Model
	for _, name := range []string{"claude", "codex", "gemini"} {
		cmd := knownCLIs[name]
		if _, err := lookPath(cmd[0]); err != nil {
			continue
		}
		models = append(models, Model{Name: name, Provider: ProviderCLI, Command: cmd})
	}
	return models
}

// Resolve builds a Model from a participant spec string. Accepted forms:
//
//	claude                     known CLI by name
//	anthropic:<api-model>      Anthropic API, participant named "anthropic"
//	name=anthropic:<api-model> Anthropic API with an explicit participant name
//	name=cmd arg arg           arbitrary CLI command
func Resolve(spec string) (Model, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Model{}, fmt.Errorf("empty model spec")
	}

	name := spec
	target := spec
	if eq := strings.Index(spec, "="); eq > 0 {
		name = spec[:eq]
		target = spec[eq+1:]
	}

	if apiModel, ok := strings.CutPrefix(target, "anthropic:"); ok {
		if name == target {
			name = "anthropic"
		}
		return Model{Name: name, Provider: ProviderAnthropic, APIModel: apiModel}, nil
	}

	if cmd, ok := knownCLIs[target]; ok {
		return Model{Name: name, Provider: ProviderCLI, Command: cmd}, nil
	}

	if name != target {
		return Model{Name: name, Provider: ProviderCLI, Command: strings.Fields(target)}, nil
	}
	return Model{}, fmt.Errorf("unknown model spec %q", spec)
}
