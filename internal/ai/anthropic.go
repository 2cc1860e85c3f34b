package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCaller serves anthropic-provider models through the API instead
// of a local CLI.
type AnthropicCaller struct {
	api          *anthropic.Client
	defaultModel anthropic.Model
	maxTokens    int64
}

// NewAnthropicCaller creates an API-backed caller. defaultModel is used when
// a Model does not carry its own APIModel.
func NewAnthropicCaller(apiKey, defaultModel string) *AnthropicCaller {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicCaller{
		api:          &client,
		defaultModel: anthropic.Model(defaultModel),
		maxTokens:    8192,
	}
}

func (c *AnthropicCaller) Call(ctx context.Context, prompt string, model Model) (string, error) {
	apiModel := c.defaultModel
	if model.APIModel != "" {
		apiModel = anthropic.Model(model.APIModel)
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     apiModel,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", &CallError{Model: model.Name, Err: fmt.Errorf("anthropic API call: %w", err)}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", &CallError{Model: model.Name, Err: fmt.Errorf("no text content in API response")}
	}
	return text, nil
}
