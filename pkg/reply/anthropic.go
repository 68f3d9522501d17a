package reply

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 512

// AnthropicCompleter implements Completer for Anthropic Claude
type AnthropicCompleter struct {
	client anthropic.Client
}

func NewAnthropicCompleter(apiKey string, opts ...option.RequestOption) *AnthropicCompleter {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		// Generator owns the retry policy.
		option.WithMaxRetries(0),
	}, opts...)
	return &AnthropicCompleter{
		client: anthropic.NewClient(opts...),
	}
}

func (c *AnthropicCompleter) Provider() string {
	return ProviderAnthropic
}

func (c *AnthropicCompleter) Complete(ctx context.Context, request Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for _, msg := range request.Messages {
		switch msg.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}
	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}
	return content.String(), nil
}
