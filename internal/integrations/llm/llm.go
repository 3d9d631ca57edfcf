// Package llm sends a short conversation to a hosted language model and
// returns the text of its reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	ProviderAnthropic        = "anthropic"
	ProviderOpenAICompatible = "openai-compatible"
)

var ErrEmptyResponse = errors.New("empty model response")

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.Code, e.Body)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Conversation struct {
	System   string
	Messages []Message
}

// Completer is one outbound model call: conversation in, reply text out.
type Completer interface {
	Complete(ctx context.Context, conv Conversation) (string, error)
}

type ProviderConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	// RequestsPerMinute throttles outbound calls; zero disables throttling.
	RequestsPerMinute int
}

// New builds the completer for cfg.Provider, wrapped in a rate limiter
// when RequestsPerMinute is set.
func New(cfg ProviderConfig, hc *http.Client, log zerolog.Logger) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: missing API key for provider %q", cfg.Provider)
	}
	var c Completer
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderAnthropic:
		c = NewAnthropic(cfg, hc, log)
	case ProviderOpenAICompatible, "openai", "openrouter", "":
		c = NewOpenAICompatible(cfg, hc, log)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
	return NewRateLimited(c, cfg.RequestsPerMinute), nil
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
