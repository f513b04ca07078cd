// Package llm wraps langchaingo models behind a completion interface that
// reports token usage, which the budget accounting depends on.
package llm

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/studygen-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// TokenUsage is the provider-reported cost of one completion call.
type TokenUsage struct {
	Prompt     int
	Completion int
}

// Total returns the combined prompt+completion token count.
func (u TokenUsage) Total() int {
	return u.Prompt + u.Completion
}

// Completer is the single LLM operation the pipeline consumes. The safety
// wrappers are the only code that calls it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, TokenUsage, error)
	ModelName() string
}

// Model is a langchaingo-backed Completer.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Complete runs one completion call and extracts the provider-reported
// token usage from the response metadata.
func (m *Model) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, TokenUsage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("generate content: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", TokenUsage{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	return choice.Content, usageFromInfo(choice.GenerationInfo), nil
}

// ModelName returns the configured LLM model name.
func (m *Model) ModelName() string {
	return m.modelName
}

// usageFromInfo digs token counts out of the GenerationInfo map. Providers
// name the keys differently (OpenAI: PromptTokens/CompletionTokens,
// Anthropic: InputTokens/OutputTokens); a provider that reports nothing
// yields zero usage and the caller keeps its estimate.
func usageFromInfo(info map[string]any) TokenUsage {
	return TokenUsage{
		Prompt:     intFromInfo(info, "PromptTokens", "InputTokens", "prompt_tokens", "input_tokens"),
		Completion: intFromInfo(info, "CompletionTokens", "OutputTokens", "completion_tokens", "output_tokens"),
	}
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
