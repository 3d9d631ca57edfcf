package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const defaultAnthropicMaxTokens = 500

type AnthropicCompleter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	log         zerolog.Logger
}

func NewAnthropic(cfg ProviderConfig, hc *http.Client, log zerolog.Logger) *AnthropicCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries belong to the analysis client
		option.WithMaxRetries(0),
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicCompleter{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		log:         log.With().Str("component", "llm").Str("provider", ProviderAnthropic).Logger(),
	}
}

func (a *AnthropicCompleter) Complete(ctx context.Context, conv Conversation) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    anthropicMessages(conv.Messages),
		Temperature: anthropic.Float(a.temperature),
	}
	if conv.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: conv.System}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			a.log.Warn().Int("status", apiErr.StatusCode).Str("model", a.model).Msg("llm anthropic api error")
			return "", &StatusError{Code: apiErr.StatusCode, Body: truncate(apiErr.Error(), 500)}
		}
		a.log.Warn().Err(err).Str("model", a.model).Msg("llm anthropic error")
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			a.log.Debug().
				Int("size", len(block.Text)).
				Int64("tokens_in", message.Usage.InputTokens).
				Int64("tokens_out", message.Usage.OutputTokens).
				Msg("llm anthropic response")
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}

// anthropicMessages folds consecutive same-role messages into one turn so
// the conversation alternates as the API expects.
func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	var (
		out    []anthropic.MessageParam
		blocks []anthropic.ContentBlockParamUnion
		role   Role
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	for _, m := range msgs {
		if m.Role != role {
			flush()
			role = m.Role
		}
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	flush()
	return out
}
