// Package app wires configuration, storage and integrations together and
// runs the command line.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"complaintbot/internal/analysis"
	"complaintbot/internal/config"
	"complaintbot/internal/httpx"
	"complaintbot/internal/ingest"
	"complaintbot/internal/integrations/llm"
	"complaintbot/internal/integrations/sheets"
	slackbot "complaintbot/internal/integrations/slack"
	"complaintbot/internal/logging"
	"complaintbot/internal/metrics"
	"complaintbot/internal/processing"
	"complaintbot/internal/storage/sqlite"

	"github.com/rs/zerolog"
)

const usage = `usage: complaintbot <command> [flags]

commands:
  load                        ingest rows from the configured source
  demo                        ingest the built-in demo complaints
  process [-include-failed]   analyze pending complaints
  reset                       move processed complaints back to pending
  clear                       delete every complaint
  refresh                     clear, load and process
  stats                       show counts and breakdowns
  list [-n N] [-status S]     list complaints
  show <id-or-order>          show one complaint
  export [-format F] [-out P] write csv, pdf or png
  run                         run the scheduler and metrics listener
`

var errUsage = errors.New("usage")

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 2
	}
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Info().
		Str("config", cfg.LoadedFrom).
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.LLMModel).
		Str("row_source", cfg.RowSource).
		Str("db", cfg.DBPath).
		Str("timezone", cfg.Timezone).
		Dur("http_timeout", appliedHTTPTimeout).
		Msg("config loaded")

	a, err := New(cfg, log, stdin, stdout)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()

	if err := a.Run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		log.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

type App struct {
	cfg      config.Config
	log      zerolog.Logger
	store    *sqlite.Store
	metrics  *metrics.Metrics
	notifier *slackbot.Notifier
	merger   *ingest.Merger
	in       *bufio.Reader
	out      io.Writer

	// newCompleter builds the model client on first use so commands that
	// never call the model run without an API key.
	newCompleter func() (llm.Completer, error)
	newSource    func(ctx context.Context) (ingest.RowSource, error)
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, in io.Reader, out io.Writer) (*App, error) {
	store, err := sqlite.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Info().Str("path", cfg.DBPath).Msg("database initialized")

	m := metrics.New()
	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		metrics:  m,
		notifier: slackbot.New(slackbot.Config{Token: cfg.SlackBotToken, Channel: cfg.SlackChannelID, AlertUsers: cfg.SlackAlertUsers}, httpx.ExternalHTTPClient(), log),
		merger:   ingest.NewMerger(store, m, cfg.Location, log),
		in:       bufio.NewReader(in),
		out:      out,
		now:      time.Now,
	}
	a.newCompleter = func() (llm.Completer, error) {
		if err := cfg.RequireLLM(); err != nil {
			return nil, err
		}
		return llm.New(cfg.ProviderConfig(), httpx.ExternalHTTPClient(), log)
	}
	a.newSource = a.configuredSource
	return a, nil
}

func (a *App) Close() error { return a.store.Close() }

func (a *App) configuredSource(ctx context.Context) (ingest.RowSource, error) {
	switch a.cfg.RowSource {
	case config.RowSourceSheets:
		timeout := time.Duration(a.cfg.ExternalHTTPTimeoutSeconds) * time.Second
		return sheets.NewSource(ctx, sheets.Config{
			CredentialsFile: a.cfg.GoogleCredentialsFile,
			SpreadsheetID:   a.cfg.SpreadsheetID,
			Range:           a.cfg.SheetRange,
		}, timeout, a.log)
	case config.RowSourceCSV:
		return ingest.CSVFileSource{Path: a.cfg.CSVPath}, nil
	default:
		return ingest.DemoSource{}, nil
	}
}

func (a *App) orchestrator() (*processing.Orchestrator, error) {
	completer, err := a.newCompleter()
	if err != nil {
		return nil, err
	}
	client := analysis.NewClient(completer, analysis.Options{
		MaxAttempts: a.cfg.AnalysisMaxAttempts,
		RetryDelay:  time.Duration(a.cfg.AnalysisRetryDelaySeconds) * time.Second,
		Metrics:     a.metrics,
		Sleep:       a.sleep,
	}, a.log)
	return processing.New(a.store, client, processing.Options{
		MaxAttempts:    a.cfg.ProcessMaxAttempts,
		BackoffInitial: time.Duration(a.cfg.ProcessBackoffInitialSeconds) * time.Second,
		BackoffMax:     time.Duration(a.cfg.ProcessBackoffMaxSeconds) * time.Second,
		Metrics:        a.metrics,
		Sleep:          a.sleep,
	}, a.log), nil
}

// Run dispatches one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "load":
		return a.cmdLoad(ctx, nil)
	case "demo":
		return a.cmdLoad(ctx, ingest.DemoSource{})
	case "process":
		return a.cmdProcess(ctx, rest)
	case "reset":
		return a.cmdReset(ctx)
	case "clear":
		return a.cmdClear(ctx)
	case "refresh":
		return a.cmdRefresh(ctx)
	case "stats":
		return a.cmdStats(ctx)
	case "list":
		return a.cmdList(ctx, rest)
	case "show":
		return a.cmdShow(ctx, rest)
	case "export":
		return a.cmdExport(ctx, rest)
	case "run":
		return a.cmdRun(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
