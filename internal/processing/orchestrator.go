// Package processing runs pending complaints through the analysis client and
// records each outcome in the store.
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"complaintbot/internal/analysis"
	"complaintbot/internal/domain"
	"complaintbot/internal/metrics"
	"complaintbot/internal/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Mode int

const (
	ModePending Mode = iota
	ModePendingAndFailed
)

func (m Mode) statuses() []domain.Status {
	switch m {
	case ModePendingAndFailed:
		return []domain.Status{domain.StatusPending, domain.StatusFailed}
	default:
		return []domain.Status{domain.StatusPending}
	}
}

type Store interface {
	SelectByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Complaint, error)
	CompleteAnalysis(ctx context.Context, id string, rootCause, solution domain.AnalysisField, importance string) (bool, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, complaintText string) analysis.Result
}

type Summary struct {
	RunID         string
	Total         int
	Successful    int
	Failed        int
	PersistErrors int
	Interrupted   bool
	// Analyzed lists the IDs that reached Successful in this run.
	Analyzed      []string
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d successful=%d failed=%d persist_errors=%d interrupted=%t",
		s.Total, s.Successful, s.Failed, s.PersistErrors, s.Interrupted)
}

const (
	DefaultMaxAttempts    = 3
	DefaultBackoffInitial = 4 * time.Second
	DefaultBackoffMax     = 10 * time.Second
)

type Options struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Metrics        *metrics.Metrics
	Sleep          func(ctx context.Context, d time.Duration) error
}

type Orchestrator struct {
	store    Store
	analyzer Analyzer
	opts     Options
	log      zerolog.Logger
}

func New(store Store, analyzer Analyzer, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = max(DefaultBackoffMax, opts.BackoffInitial)
	}
	return &Orchestrator{
		store:    store,
		analyzer: analyzer,
		opts:     opts,
		log:      log.With().Str("component", "processing").Logger(),
	}
}

// Run processes the selected complaints one at a time. Cancelling ctx stops
// the loop between complaints; the complaint in flight always finishes. A
// panic ends the batch with an error and keeps what was already written.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (sum Summary, err error) {
	sum.RunID = uuid.NewString()
	log := o.log.With().Str("run_id", sum.RunID).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing batch aborted: %v", r)
			log.Error().Interface("panic", r).Msg("processing batch aborted")
		}
	}()

	complaints, err := o.store.SelectByStatus(ctx, mode.statuses()...)
	if err != nil {
		return sum, fmt.Errorf("select complaints: %w", err)
	}
	sum.Total = len(complaints)
	log.Info().Int("complaints", sum.Total).Msg("processing started")

	work := context.WithoutCancel(ctx)
	for i, c := range complaints {
		if ctx.Err() != nil {
			sum.Interrupted = true
			log.Warn().Int("done", i).Int("remaining", sum.Total-i).Msg("processing interrupted")
			break
		}
		o.processOne(work, log, c, &sum)
		log.Info().Int("n", i+1).Int("of", sum.Total).
			Int("successful", sum.Successful).Int("failed", sum.Failed).
			Msg("processing progress")
	}

	o.opts.Metrics.SetPending(sum.Total - sum.Successful - sum.Failed)
	log.Info().Str("summary", sum.String()).Msg("processing finished")
	return sum, nil
}

func (o *Orchestrator) processOne(ctx context.Context, log zerolog.Logger, c domain.Complaint, sum *Summary) {
	clog := log.With().Str("id", c.ID).Logger()
	text := c.AnalysisText()

	calls := 0
	res, attempts, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: o.opts.MaxAttempts,
		Delay:       retry.Exponential(o.opts.BackoffInitial, o.opts.BackoffMax),
		IsRetryable: func(err error) bool { return errors.Is(err, analysis.ErrTransport) },
		Sleep:       o.opts.Sleep,
	}, func(ctx context.Context, attempt int) (analysis.Result, error) {
		if attempt > 1 {
			clog.Warn().Int("attempt", attempt).Msg("retrying complaint analysis")
		}
		r := o.analyzer.Analyze(ctx, text)
		calls += r.Attempts
		return r, r.Err
	})

	if err == nil {
		ok, perr := o.store.CompleteAnalysis(ctx, c.ID, res.RootCause, res.SuggestedSolution, string(res.Importance))
		switch {
		case perr != nil:
			sum.PersistErrors++
			clog.Error().Err(perr).Msg("saving analysis failed")
		case !ok:
			sum.PersistErrors++
			clog.Error().Msg("saving analysis failed: complaint missing or not updatable")
		default:
			sum.Successful++
			sum.Analyzed = append(sum.Analyzed, c.ID)
			o.opts.Metrics.IncProcessed("successful")
			clog.Info().Int("model_calls", res.Attempts).Msg("complaint analyzed")
		}
		return
	}

	msg := fmt.Sprintf("Failed to process after %s (%s): %v",
		plural(attempts, "attempt"), plural(calls, "model call"), err)
	ok, perr := o.store.MarkFailed(ctx, c.ID, msg)
	switch {
	case perr != nil:
		sum.PersistErrors++
		clog.Error().Err(perr).Msg("saving failure failed")
	case !ok:
		sum.PersistErrors++
		clog.Error().Msg("saving failure failed: complaint missing or not updatable")
	default:
		sum.Failed++
		o.opts.Metrics.IncProcessed("failed")
		clog.Warn().Err(err).Int("attempts", attempts).Int("model_calls", calls).Msg("complaint failed")
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
