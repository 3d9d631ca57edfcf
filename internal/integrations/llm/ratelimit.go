package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to the wrapped completer.
type RateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

// NewRateLimited returns next unchanged when perMinute is not positive.
func NewRateLimited(next Completer, perMinute int) Completer {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Complete(ctx context.Context, conv Conversation) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, conv)
}
