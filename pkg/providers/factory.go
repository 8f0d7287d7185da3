package providers

import (
	"fmt"
	"strings"

	"github.com/bashme-ai/bashme/pkg/config"
)

// CreateProvider builds the model client described by cfg.LLM. An explicit
// llm.provider wins; otherwise the model name decides.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	llm := cfg.LLM

	if strings.TrimSpace(llm.APIKey) == "" {
		return nil, fmt.Errorf("no API key configured (set llm.api_key, BASHME_LLM_API_KEY or GEMINI_API_KEY)")
	}

	name := strings.ToLower(strings.TrimSpace(llm.Provider))
	if name == "" {
		if isAnthropicModel(llm.Model) {
			name = "anthropic"
		} else {
			name = "openai"
		}
	}

	switch name {
	case "anthropic":
		base := llm.BaseURL
		if base == config.DefaultBaseURL {
			// The shared default points at the OpenAI-compatible Gemini
			// endpoint; let the SDK use its own default instead.
			base = ""
		}
		return NewAnthropicProvider(llm.APIKey, base), nil
	case "openai":
		return NewOpenAIProvider(llm.APIKey, llm.BaseURL, llm.Proxy), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", llm.Provider)
	}
}

func isAnthropicModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "claude") || strings.HasPrefix(m, "anthropic/")
}
