// Package scheduler runs the periodic processing and report jobs.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Standard 5-field expressions (minute hour day-of-month month day-of-week)
// plus descriptors such as "@hourly" or "@every 30m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a schedule expression.
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Job receives a context that is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	log  zerolog.Logger
	ctx  context.Context
	stop context.CancelFunc
	jobs int
}

func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "scheduler").Logger()
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		loc:  loc,
		log:  log,
		ctx:  ctx,
		stop: stop,
	}
}

// Add registers job under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if strings.TrimSpace(spec) == "" {
		s.log.Info().Str("job", name).Msg("job disabled (no schedule)")
		return nil
	}
	sched, err := Parse(spec)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		start := time.Now()
		jlog := s.log.With().Str("job", name).Logger()
		jlog.Info().Msg("job started")
		if err := job(s.ctx); err != nil {
			jlog.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		jlog.Info().Dur("took", time.Since(start)).Msg("job finished")
	}))
	s.jobs++
	now := time.Now().In(s.loc)
	s.log.Info().Str("job", name).Str("schedule", spec).
		Str("next", sched.Next(now).Format("Mon Jan 2 15:04")).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Jobs() int { return s.jobs }

// Run blocks until ctx is done, then waits for running jobs to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopping")
	s.stop()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
