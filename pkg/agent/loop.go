package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bashme-ai/bashme/pkg/logger"
	"github.com/bashme-ai/bashme/pkg/providers"
	"github.com/bashme-ai/bashme/pkg/tools"
)

// DefaultMaxIterations bounds the model/tool rounds of a single request
// when the configuration does not say otherwise.
const DefaultMaxIterations = 10

// Loop drives one request through alternating model and tool rounds. The
// model either answers outright or requests tool calls; every requested
// call is executed through the cache and answered before the next model
// round. All fields are fixed at warm-up, so one Loop value serves
// concurrent requests.
type Loop struct {
	Provider      providers.LLMProvider
	Registry      *tools.ToolRegistry
	Cache         *tools.ResultCache
	Model         string
	Options       map[string]any
	MaxIterations int
}

// Run advances conv until the model produces a final answer. It returns
// the answer text and the number of model rounds taken.
//
// A tool failure is folded into the transcript and the loop continues; a
// model failure, a cancelled context or an exhausted iteration budget
// aborts the request.
func (l *Loop) Run(ctx context.Context, conv *Conversation) (string, int, error) {
	maxIterations := l.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	toolDefs := l.Registry.ToProviderDefs()
	var usage providers.UsageInfo

	iteration := 0
	for iteration < maxIterations {
		iteration++

		if err := ctx.Err(); err != nil {
			return "", iteration, err
		}

		logger.DebugCF("agent", "Model round", map[string]any{
			"iteration":      iteration,
			"max_iterations": maxIterations,
			"messages":       conv.Len(),
		})

		response, err := l.Provider.Chat(ctx, conv.Messages(), toolDefs, l.Model, l.Options)
		if err != nil {
			logger.ErrorCF("agent", "Model call failed", map[string]any{
				"iteration": iteration,
				"error":     err.Error(),
			})
			return "", iteration, fmt.Errorf("model call failed: %w", err)
		}

		if response.Usage != nil {
			usage.PromptTokens += response.Usage.PromptTokens
			usage.CompletionTokens += response.Usage.CompletionTokens
			usage.TotalTokens += response.Usage.TotalTokens
		}

		if len(response.ToolCalls) == 0 {
			logger.InfoCF("agent", "Request complete", map[string]any{
				"iterations":        iteration,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
			})
			return response.Content, iteration, nil
		}

		toolNames := make([]string, 0, len(response.ToolCalls))
		for _, tc := range response.ToolCalls {
			toolNames = append(toolNames, tc.Name)
		}
		logger.InfoCF("agent", "Model requested tool calls", map[string]any{
			"iteration": iteration,
			"tools":     strings.Join(toolNames, ", "),
		})

		conv.AddAssistant(response.Content, response.ToolCalls)

		// Execute every requested call before the next model round, in
		// the order the model asked for them.
		for _, tc := range response.ToolCalls {
			logger.InfoCF("agent", fmt.Sprintf("Tool call: %s(%s)", tc.Name, argsPreview(tc.Arguments)),
				map[string]any{
					"tool":      tc.Name,
					"iteration": iteration,
				})
			result := l.Cache.Execute(ctx, l.Registry, tc.Name, tc.Arguments)
			conv.AddToolResult(tc.ID, result.Content())
		}
	}

	return "", iteration, fmt.Errorf("no final answer after %d tool iterations", maxIterations)
}

func argsPreview(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
