package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bashme-ai/bashme/pkg/config"
	"github.com/bashme-ai/bashme/pkg/logger"
	"github.com/bashme-ai/bashme/pkg/providers"
	"github.com/bashme-ai/bashme/pkg/tools"
)

// DegradedMarker is the lone suggestion served while the session never
// finished warming up. The leading # keeps shell widgets from treating it
// as a runnable completion.
const DegradedMarker = "# Agent not initialized. Check server logs."

const errorMarkerPrefix = "# Error: "

// Session is the daemon's warm agent state: model provider, discovered
// tool registry, result cache and instruction prompt. It is built once at
// boot; after Warmup returns, every field is read-only and concurrent
// requests share the session without locking. The cache is the only
// mutable part and synchronizes itself.
type Session struct {
	cfg            *config.Config
	promptName     string
	fallbackPrompt string

	registry *tools.ToolRegistry
	cache    *tools.ResultCache
	options  map[string]any

	provider     providers.LLMProvider
	client       *tools.RegistryClient
	systemPrompt string
	warmErr      error
}

// NewSession prepares an unwarmed session. promptName is the registry
// prompt to install as the system message; fallbackPrompt is the embedded
// copy used when the registry cannot serve it.
func NewSession(cfg *config.Config, promptName, fallbackPrompt string) *Session {
	return &Session{
		cfg:            cfg,
		promptName:     promptName,
		fallbackPrompt: fallbackPrompt,
		registry:       tools.NewToolRegistry(),
		cache: tools.NewResultCache(
			time.Duration(cfg.Tools.Cache.TTLMS)*time.Millisecond,
			cfg.Tools.Cache.Capacity,
			cfg.Tools.StableTools,
		),
		options: buildLLMOptions(cfg.LLM),
	}
}

// Warmup builds the model provider, connects the tool registry and
// installs the instruction prompt. It runs once, before the daemon starts
// serving. A failed warm-up leaves the session degraded rather than
// crashing the daemon: requests are answered with the degraded marker and
// the error shows up on the health endpoint.
func (s *Session) Warmup(ctx context.Context) error {
	logger.InfoCF("agent", "Warming up agent session", map[string]any{
		"model":     s.cfg.LLM.Model,
		"transport": s.cfg.Tools.Registry.Transport,
	})

	provider, err := providers.CreateProvider(s.cfg)
	if err != nil {
		return s.degrade(fmt.Errorf("create provider: %w", err))
	}

	client, remoteTools, err := tools.LoadRegistryTools(ctx, s.cfg.Tools)
	if err != nil {
		return s.degrade(err)
	}

	for _, tool := range remoteTools {
		s.registry.Register(tool)
	}

	prompt, err := client.FetchPrompt(ctx, s.promptName)
	if err != nil {
		// A missing prompt is not fatal: the embedded copy carries the
		// same text.
		logger.WarnCF("agent", "Prompt fetch failed, using embedded copy", map[string]any{
			"prompt": s.promptName,
			"error":  err.Error(),
		})
		prompt = s.fallbackPrompt
	}

	s.provider = provider
	s.client = client
	s.systemPrompt = prompt

	logger.InfoCF("agent", "Agent session ready", map[string]any{
		"model": s.model(),
		"tools": strings.Join(s.registry.List(), ", "),
	})
	return nil
}

func (s *Session) degrade(err error) error {
	s.warmErr = err
	logger.ErrorCF("agent", "Warm-up failed, serving degraded", map[string]any{
		"error": err.Error(),
	})
	return err
}

// Generate turns one shell snapshot into completion suggestions. Failures
// surface as marker suggestions rather than errors so the shell widget
// always has something to print; the only error returned is the caller's
// own context ending, which the gateway maps to a silent abort.
func (s *Session) Generate(ctx context.Context, snapshot ShellSnapshot) ([]string, error) {
	if s.Degraded() {
		return []string{DegradedMarker}, nil
	}

	conv := NewConversation()
	conv.AddSystem(s.systemPrompt)
	conv.AddUser(snapshot.UserMessage())

	loop := &Loop{
		Provider:      s.provider,
		Registry:      s.registry,
		Cache:         s.cache,
		Model:         s.model(),
		Options:       s.options,
		MaxIterations: s.cfg.LLM.MaxToolIterations,
	}

	content, iterations, err := loop.Run(ctx, conv)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return []string{errorMarkerPrefix + err.Error()}, nil
	}

	suggestions := SplitSuggestions(content)
	logger.DebugCF("agent", "Suggestions generated", map[string]any{
		"iterations":  iterations,
		"suggestions": len(suggestions),
	})
	return suggestions, nil
}

// Degraded reports whether requests are being answered with the degraded
// marker instead of real completions.
func (s *Session) Degraded() bool {
	return s.warmErr != nil || s.provider == nil
}

// WarmupError returns the error that put the session into degraded mode,
// or nil.
func (s *Session) WarmupError() error {
	return s.warmErr
}

// CacheStats exposes tool cache activity for the health endpoint.
func (s *Session) CacheStats() tools.CacheStats {
	return s.cache.Stats()
}

// Close tears the session down: the registry session first (terminating
// the toolserver subprocess), then the cache janitors.
func (s *Session) Close() error {
	var errs []error
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tool registry: %w", err))
		}
		s.client = nil
	}
	if s.cache != nil {
		s.cache.Stop()
	}
	return errors.Join(errs...)
}

func (s *Session) model() string {
	if m := strings.TrimSpace(s.cfg.LLM.Model); m != "" {
		return m
	}
	return s.provider.GetDefaultModel()
}

// SplitSuggestions converts the model's final answer into suggestion
// lines: surrounding whitespace trimmed, then one suggestion per line.
// Interior blank lines survive the split; the shell widget decides what
// to show. An empty answer means no suggestions, not an error.
func SplitSuggestions(content string) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "\n")
}

func buildLLMOptions(llm config.LLMConfig) map[string]any {
	options := map[string]any{
		// The system prompt and tool definitions are fixed for the daemon
		// lifetime, so one cache key covers every request.
		"prompt_cache_key": "bashme-completion",
	}
	if llm.MaxTokens > 0 {
		options["max_tokens"] = llm.MaxTokens
	}
	if llm.Temperature > 0 {
		options["temperature"] = llm.Temperature
	}
	return options
}
