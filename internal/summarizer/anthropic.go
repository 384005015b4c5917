package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/antoniostano/mnemo/internal/memory"
)

const summarySystemPrompt = "You compress chat history. Produce one short paragraph that " +
	"preserves decisions, facts, names and open questions from the turns below. " +
	"No preamble, no commentary."

// Anthropic summarizes item clusters with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic summarizer: api key required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

func (a *Anthropic) Summarize(ctx context.Context, items []memory.Item) (string, int, error) {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(string(it.Role))
		b.WriteString(": ")
		b.WriteString(it.Content)
		b.WriteString("\n")
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("anthropic summarize: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, errors.New("anthropic summarize: empty response")
	}

	tokens := int(resp.Usage.OutputTokens)
	if tokens <= 0 {
		tokens = memory.EstimateTokens(text)
	}
	return text, tokens, nil
}
