package providers

import (
	"testing"

	"github.com/bashme-ai/bashme/pkg/config"
)

func TestCreateProvider_NoKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = ""

	if _, err := CreateProvider(cfg); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestCreateProvider_DefaultsToOpenAICompatible(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "key"

	p, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Fatalf("provider type = %T, want *OpenAIProvider", p)
	}
}

func TestCreateProvider_ClaudeModelPicksAnthropic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "key"
	cfg.LLM.Model = "claude-sonnet-4-5"

	p, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	ap, ok := p.(*AnthropicProvider)
	if !ok {
		t.Fatalf("provider type = %T, want *AnthropicProvider", p)
	}
	// The shared Gemini default endpoint must not leak into the Anthropic client.
	if ap.baseURL != anthropicDefaultBaseURL {
		t.Errorf("baseURL = %q, want SDK default", ap.baseURL)
	}
}

func TestCreateProvider_ExplicitProviderWins(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "key"
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "some-model"

	p, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Fatalf("provider type = %T, want *AnthropicProvider", p)
	}
}

func TestCreateProvider_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "key"
	cfg.LLM.Provider = "bedrock"

	if _, err := CreateProvider(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestIsAnthropicModel(t *testing.T) {
	cases := map[string]bool{
		"claude-sonnet-4-5":     true,
		"anthropic/claude-opus": true,
		"Claude-Haiku":          true,
		"gemini-2.5-flash-lite": false,
		"gpt-4o":                false,
		"":                      false,
	}
	for model, want := range cases {
		if got := isAnthropicModel(model); got != want {
			t.Errorf("isAnthropicModel(%q) = %v, want %v", model, got, want)
		}
	}
}
