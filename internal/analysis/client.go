// Package analysis asks the language model for a complaint's root cause and
// remedy and turns the free-text reply into a structured result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"complaintbot/internal/domain"
	"complaintbot/internal/integrations/llm"
	"complaintbot/internal/metrics"
	"complaintbot/internal/retry"

	"github.com/rs/zerolog"
)

var (
	// ErrTransport covers unreachable endpoints and non-2xx statuses.
	ErrTransport = errors.New("model transport error")
	// ErrMalformed covers empty replies and replies the normalizer rejects.
	ErrMalformed      = errors.New("malformed model response")
	ErrEmptyComplaint = errors.New("empty complaint")
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

const systemPrompt = `You analyze customer complaints about medical supply products.
Respond with ONLY a JSON object, no prose and no markdown, in exactly this shape:
{"root_cause": ["1. ...", "2. ...", "3. ..."], "suggested_solution": ["1. ...", "2. ...", "3. ..."]}
Give exactly 3 numbered root causes, most likely first, and exactly 3 numbered
solutions, each addressing the matching root cause. Keep every point to one sentence.`

// Result is the outcome of one complaint analysis. Err is nil on success and
// wraps ErrTransport, ErrMalformed or ErrEmptyComplaint otherwise; the
// analysis fields are always populated.
type Result struct {
	RootCause         domain.AnalysisField
	SuggestedSolution domain.AnalysisField
	// Importance is empty on success so the store derives it.
	Importance domain.Importance
	Attempts   int
	Err        error
}

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Metrics     *metrics.Metrics
	// Sleep overrides the wait between attempts.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	completer   llm.Completer
	maxAttempts int
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
	log         zerolog.Logger
}

func NewClient(completer llm.Completer, opts Options, log zerolog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Client{
		completer:   completer,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		metrics:     opts.Metrics,
		sleep:       opts.Sleep,
		log:         log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze obtains one structured analysis for the complaint text, retrying
// transport failures and unusable replies with a fixed delay.
func (c *Client) Analyze(ctx context.Context, complaintText string) Result {
	if strings.TrimSpace(complaintText) == "" {
		return Result{
			RootCause:         domain.Scalar("Empty complaint"),
			SuggestedSolution: domain.Scalar("No complaint text was provided for analysis"),
			Importance:        domain.ImportanceMedium,
			Err:               ErrEmptyComplaint,
		}
	}

	var lastReply string
	var lastErr error
	n, attempts, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: c.maxAttempts,
		Delay:       retry.Fixed(c.retryDelay),
		Sleep:       c.sleep,
	}, func(ctx context.Context, attempt int) (Normalized, error) {
		conv := c.conversation(complaintText, attempt, lastReply, lastErr)
		reply, err := c.attempt(ctx, conv, attempt)
		lastReply, lastErr = reply, err
		if err != nil {
			return Normalized{}, err
		}
		n := NormalizeWithLogger(reply, c.log)
		if !n.OK() {
			lastErr = fmt.Errorf("%w: %s", ErrMalformed, n.Error)
			c.metrics.IncAttempt("malformed")
			c.log.Warn().Int("attempt", attempt).Str("error", n.Error).Msg("analysis reply rejected")
			return n, lastErr
		}
		c.metrics.IncAttempt("success")
		return n, nil
	})

	if err != nil {
		c.log.Error().Err(err).Int("attempts", attempts).Msg("analysis exhausted")
		return Result{
			RootCause:         domain.Scalar(fmt.Sprintf("Analysis failed after %d attempts", attempts)),
			SuggestedSolution: domain.Scalar(fmt.Sprintf("Manual review required. Last error: %v", err)),
			Importance:        domain.ImportanceMedium,
			Attempts:          attempts,
			Err:               err,
		}
	}
	c.log.Info().Int("attempts", attempts).Str("strategy", n.Strategy).Msg("analysis ok")
	return Result{
		RootCause:         n.RootCause,
		SuggestedSolution: n.SuggestedSolution,
		Attempts:          attempts,
	}
}

func (c *Client) attempt(ctx context.Context, conv llm.Conversation, attempt int) (string, error) {
	c.log.Debug().Int("attempt", attempt).Str("system", conv.System).
		Str("prompt", conv.Messages[len(conv.Messages)-1].Content).Msg("analysis request")

	start := time.Now()
	reply, err := c.completer.Complete(ctx, conv)
	c.metrics.ObserveModelRequest(time.Since(start))

	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			c.metrics.IncAttempt("malformed")
			c.log.Warn().Int("attempt", attempt).Msg("analysis empty reply")
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		c.metrics.IncAttempt("transport")
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("analysis transport error")
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.log.Debug().Int("attempt", attempt).Str("reply", reply).Msg("analysis raw reply")
	if strings.TrimSpace(reply) == "" {
		c.metrics.IncAttempt("malformed")
		return "", fmt.Errorf("%w: empty reply", ErrMalformed)
	}
	return reply, nil
}

func (c *Client) conversation(complaintText string, attempt int, lastReply string, lastErr error) llm.Conversation {
	conv := llm.Conversation{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Analyze this complaint:\n\n" + complaintText},
		},
	}
	if attempt <= 1 || lastErr == nil {
		return conv
	}
	if strings.TrimSpace(lastReply) != "" {
		conv.Messages = append(conv.Messages, llm.Message{Role: llm.RoleAssistant, Content: lastReply})
	}
	conv.Messages = append(conv.Messages, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf("Your previous attempt failed: %v. Reply again with ONLY the JSON object "+
			`{"root_cause": [3 numbered points], "suggested_solution": [3 numbered points]}.`, lastErr),
	})
	return conv
}
