package ingest

import (
	"context"
	"fmt"
	"time"

	"complaintbot/internal/domain"
	"complaintbot/internal/metrics"
	"complaintbot/internal/storage/sqlite"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the part of the complaint store the merger writes through.
type Store interface {
	NextNumber(ctx context.Context) (int, error)
	AddRecord(ctx context.Context, rec domain.NewComplaint) sqlite.AddOutcome
}

type MergeResult struct {
	Added   int
	Skipped int
	Invalid int
	Errors  int
}

func (r MergeResult) String() string {
	return fmt.Sprintf("added=%d skipped=%d invalid=%d errors=%d", r.Added, r.Skipped, r.Invalid, r.Errors)
}

type Merger struct {
	store    Store
	validate *validator.Validate
	metrics  *metrics.Metrics
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewMerger reads zone-less row timestamps in loc (UTC when nil).
func NewMerger(store Store, m *metrics.Metrics, loc *time.Location, log zerolog.Logger) *Merger {
	return &Merger{
		store:    store,
		validate: newValidator(),
		metrics:  m,
		loc:      loc,
		now:      time.Now,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Merge maps each row and hands it to the store. Ids are assigned from the
// store's next number and advance for every mapped row, including rows the
// store then skips as duplicates. Bad rows are skipped, never fatal.
func (m *Merger) Merge(ctx context.Context, rows []Row) (MergeResult, error) {
	var res MergeResult
	next, err := m.store.NextNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("next complaint number: %w", err)
	}

	runLog := m.log.With().Str("run_id", uuid.NewString()).Logger()
	now := m.now()
	for i, row := range rows {
		rec, err := MapRow(row, now, m.loc)
		if err == nil {
			err = validateRecord(m.validate, rec)
		}
		if err != nil {
			res.Invalid++
			runLog.Warn().Int("row", i+1).Err(err).Msg("skipping invalid row")
			continue
		}

		rec.ID = domain.FormatComplaintID(next)
		next++

		switch m.store.AddRecord(ctx, rec) {
		case sqlite.OutcomeAdded:
			res.Added++
		case sqlite.OutcomeSkipped:
			res.Skipped++
		default:
			res.Errors++
		}
	}

	m.metrics.IncIngested(string(sqlite.OutcomeAdded), res.Added)
	m.metrics.IncIngested(string(sqlite.OutcomeSkipped), res.Skipped)
	m.metrics.IncIngested("invalid", res.Invalid)
	m.metrics.IncIngested(string(sqlite.OutcomeError), res.Errors)
	runLog.Info().Int("rows", len(rows)).
		Int("added", res.Added).Int("skipped", res.Skipped).
		Int("invalid", res.Invalid).Int("errors", res.Errors).
		Msg("merge finished")
	return res, nil
}

// Load fetches rows from src and merges them.
func (m *Merger) Load(ctx context.Context, src RowSource) (MergeResult, error) {
	rows, err := src.Rows(ctx)
	if err != nil {
		return MergeResult{}, fmt.Errorf("read %s rows: %w", src.Name(), err)
	}
	m.log.Info().Str("source", src.Name()).Int("rows", len(rows)).Msg("rows fetched")
	return m.Merge(ctx, rows)
}
