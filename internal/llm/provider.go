package llm

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// Provider constants
const (
	ProviderTemplate  = "template"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// ErrTemplateOnly is returned by providers that never call out; callers build the probe from templates.
var ErrTemplateOnly = errors.New("template-only provider")

// NewClient creates a probe content provider based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for template and mock).
// An empty model selects the provider's default.
func NewClient(provider, apiKey, model string) (domain.ProbeContentProvider, error) {
	switch provider {
	case ProviderTemplate, "":
		return NewTemplateClient(), nil

	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey, model), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey, model), nil

	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiClient(apiKey, model), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: template, openai, anthropic, gemini, mock)", provider)
	}
}
