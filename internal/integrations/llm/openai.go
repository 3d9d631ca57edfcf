package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultOpenAICompatibleURL points at OpenRouter's chat completions API.
const DefaultOpenAICompatibleURL = "https://openrouter.ai/api/v1/chat/completions"

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAICompleter talks to any OpenAI-style chat completions endpoint.
type OpenAICompleter struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	log         zerolog.Logger
}

func NewOpenAICompatible(cfg ProviderConfig, hc *http.Client, log zerolog.Logger) *OpenAICompleter {
	url := strings.TrimSpace(cfg.BaseURL)
	if url == "" {
		url = DefaultOpenAICompatibleURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &OpenAICompleter{
		httpClient:  hc,
		url:         url,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.With().Str("component", "llm").Str("provider", ProviderOpenAICompatible).Logger(),
	}
}

func (o *OpenAICompleter) Complete(ctx context.Context, conv Conversation) (string, error) {
	reqBody := openAIRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}
	if conv.System != "" {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: conv.System})
	}
	for _, m := range conv.Messages {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.log.Warn().Err(err).Str("model", o.model).Msg("llm openai error")
		return "", fmt.Errorf("OpenAI-compatible API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		o.log.Warn().Int("status", resp.StatusCode).Str("model", o.model).Msg("llm openai api error")
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 500)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return "", ErrEmptyResponse
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing OpenAI-compatible response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("OpenAI-compatible API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	ev := o.log.Debug().Int("size", len(parsed.Choices[0].Message.Content))
	if parsed.Usage != nil {
		ev = ev.Int64("tokens_in", parsed.Usage.PromptTokens).Int64("tokens_out", parsed.Usage.CompletionTokens)
	}
	ev.Msg("llm openai response")
	return parsed.Choices[0].Message.Content, nil
}
