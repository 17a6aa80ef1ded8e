package summarize

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI-compatible provider.
const (
	DefaultModel       = "gemini-2.0-flash"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.3
)

// OpenAIConfig configures OpenAIProvider. BaseURL may point at any
// OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAIProvider generates summaries through the Chat Completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	available   bool
}

// NewOpenAI builds a provider from cfg. Without an API key the provider
// reports itself unavailable.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	p := &OpenAIProvider{
		client:      openai.NewClientWithConfig(cc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		available:   cfg.APIKey != "",
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = DefaultMaxTokens
	}
	if p.temperature <= 0 {
		p.temperature = DefaultTemperature
	}
	return p
}

func (p *OpenAIProvider) Name() string    { return "OPENAI" }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Available() bool { return p.available }

// Generate sends prompt as a single user message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (Generation, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return Generation{}, errors.New("empty response from model: no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Generation{}, errors.New("empty response from model")
	}
	return Generation{Text: text, TokensUsed: resp.Usage.TotalTokens}, nil
}
