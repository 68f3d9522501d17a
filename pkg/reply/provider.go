package reply

import (
	"context"
	"fmt"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Message is one entry of a completion request.
type Message struct {
	Role    string
	Content string
}

// Request contains the parameters of a single completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

// Completer is an external completion service.
type Completer interface {
	// Complete returns the full reply text for request.
	Complete(ctx context.Context, request Request) (string, error)

	// Provider returns the provider name
	Provider() string
}

// NewCompleter creates a completion client for the named provider. An empty
// baseURL keeps the provider's public endpoint.
func NewCompleter(provider, apiKey, baseURL string) (Completer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for provider %s", provider)
	}
	switch provider {
	case ProviderAnthropic:
		var opts []anthropicoption.RequestOption
		if baseURL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(baseURL))
		}
		return NewAnthropicCompleter(apiKey, opts...), nil
	case ProviderOpenAI:
		var opts []openaioption.RequestOption
		if baseURL != "" {
			opts = append(opts, openaioption.WithBaseURL(baseURL))
		}
		return NewOpenAICompleter(apiKey, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
