// Package sqlite persists complaints and owns every status transition.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"complaintbot/internal/domain"

	"github.com/rs/zerolog"
)

type AddOutcome string

const (
	OutcomeAdded   AddOutcome = "added"
	OutcomeSkipped AddOutcome = "skipped"
	OutcomeError   AddOutcome = "error"
)

var ErrEmptyRootCause = errors.New("root cause must not be empty")

// ProcessingErrorRootCause is stored as the root cause of failed complaints.
const ProcessingErrorRootCause = "Processing Error"

type ResetCounts struct {
	Successful int
	Failed     int
}

type Stats struct {
	Total               int
	Pending             int
	Successful          int
	Failed              int
	ProcessedPercentage float64
}

type Breakdown struct {
	ByCategory         map[string]int
	ByImportance       map[domain.Importance]int
	TopCategory        string
	TopImportance      domain.Importance
	AvgProcessingHours float64
	ProcessedCount     int
}

type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
	log zerolog.Logger
}

func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: log.With().Str("component", "store").Logger(),
	}
}

// Open initializes the database at path and wraps it in a Store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return New(db, log), nil
}

func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NextNumber returns one more than the largest COMP-###### suffix in the
// store, or 1 when none exists. Ids in other shapes are ignored.
func (s *Store) NextNumber(ctx context.Context) (int, error) {
	return nextNumber(ctx, s.db)
}

func (s *Store) NextID(ctx context.Context) (string, error) {
	n, err := s.NextNumber(ctx)
	if err != nil {
		return "", err
	}
	return domain.FormatComplaintID(n), nil
}

func nextNumber(ctx context.Context, q querier) (int, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM complaints WHERE id LIKE ?`, domain.ComplaintIDPrefix+"%")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if n, ok := domain.ParseComplaintNumber(id); ok && n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// AddRecord inserts a Pending complaint unless one with the same order id
// (or, failing that, the same id) already exists. Failures are logged and
// reported as OutcomeError.
func (s *Store) AddRecord(ctx context.Context, rec domain.NewComplaint) AddOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.addRecord(ctx, rec)
	if err != nil {
		s.log.Error().Err(err).Str("id", rec.ID).Str("order_id", rec.OrderID).Msg("add record failed")
		return OutcomeError
	}
	return outcome
}

func (s *Store) addRecord(ctx context.Context, rec domain.NewComplaint) (AddOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeError, err
	}
	defer tx.Rollback()

	orderID := strings.TrimSpace(rec.OrderID)
	if orderID != "" {
		exists, err := existsTx(ctx, tx, `SELECT COUNT(*) FROM complaints WHERE order_id = ?`, orderID)
		if err != nil {
			return OutcomeError, err
		}
		if exists {
			return OutcomeSkipped, nil
		}
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		n, err := nextNumber(ctx, tx)
		if err != nil {
			return OutcomeError, err
		}
		id = domain.FormatComplaintID(n)
	} else {
		exists, err := existsTx(ctx, tx, `SELECT COUNT(*) FROM complaints WHERE id = ?`, id)
		if err != nil {
			return OutcomeError, err
		}
		if exists {
			return OutcomeSkipped, nil
		}
	}

	receivedAt := rec.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO complaints (id, order_id, name, email, contact_number, product_name, purchase_date,
		 category, description, photo_proof_link, importance_level, status, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, orderID, rec.Name, rec.Email, rec.ContactNumber, rec.ProductName, rec.PurchaseDate,
		rec.Category, rec.Description, rec.PhotoProofLink,
		string(domain.ImportanceMedium), string(domain.StatusPending), receivedAt.UTC(),
	)
	if err != nil {
		return OutcomeError, err
	}
	if err := tx.Commit(); err != nil {
		return OutcomeError, err
	}
	return OutcomeAdded, nil
}

func existsTx(ctx context.Context, tx *sql.Tx, query string, arg any) (bool, error) {
	var count int
	if err := tx.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) SelectPending(ctx context.Context) ([]domain.Complaint, error) {
	return s.SelectByStatus(ctx, domain.StatusPending)
}

// SelectByStatus returns complaints in any of the given statuses in
// insertion order.
func (s *Store) SelectByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Complaint, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return s.queryComplaints(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY rowid`,
		args...)
}

// CompleteAnalysis attaches an analysis and marks the complaint Successful.
// An empty importance is derived from the complaint and analysis text; an
// unrecognized one falls back to Medium. It reports false when the id does
// not exist or the record may not move to Successful.
func (s *Store) CompleteAnalysis(ctx context.Context, id string, rootCause, solution domain.AnalysisField, importance string) (bool, error) {
	rc := domain.FormatField(rootCause)
	sol := domain.FormatField(solution)
	if rc == "" {
		return false, ErrEmptyRootCause
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	if !current.Status.CanTransitionTo(domain.StatusSuccessful) {
		s.log.Warn().Str("id", id).Str("status", string(current.Status)).Msg("complete analysis refused")
		return false, nil
	}

	level := domain.ParseImportance(importance)
	if strings.TrimSpace(importance) == "" {
		level = domain.DeriveImportance(current.Category, current.Description, rc, sol)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE complaints SET root_cause = ?, suggested_solution = ?, importance_level = ?, status = ?, processed_at = ?
		 WHERE id = ?`,
		rc, sol, string(level), string(domain.StatusSuccessful), s.now(), id,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkFailed records a processing failure with message as the solution text.
func (s *Store) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	if !current.Status.CanTransitionTo(domain.StatusFailed) {
		s.log.Warn().Str("id", id).Str("status", string(current.Status)).Msg("mark failed refused")
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE complaints SET root_cause = ?, suggested_solution = ?, status = ?, processed_at = ? WHERE id = ?`,
		ProcessingErrorRootCause, message, string(domain.StatusFailed), s.now(), id,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetProcessed moves every Successful and Failed complaint back to
// Pending and clears its analysis.
func (s *Store) ResetProcessed(ctx context.Context) (ResetCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResetCounts{}, err
	}
	defer tx.Rollback()

	var counts ResetCounts
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM complaints`,
		string(domain.StatusSuccessful), string(domain.StatusFailed),
	).Scan(&counts.Successful, &counts.Failed)
	if err != nil {
		return ResetCounts{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE complaints SET status = ?, root_cause = NULL, suggested_solution = NULL, processed_at = NULL
		 WHERE status IN (?, ?)`,
		string(domain.StatusPending), string(domain.StatusSuccessful), string(domain.StatusFailed),
	)
	if err != nil {
		return ResetCounts{}, err
	}
	if err := tx.Commit(); err != nil {
		return ResetCounts{}, err
	}
	s.log.Info().Int("successful", counts.Successful).Int("failed", counts.Failed).Msg("reset processed complaints")
	return counts, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM complaints`,
		string(domain.StatusPending), string(domain.StatusSuccessful), string(domain.StatusFailed),
	).Scan(&st.Total, &st.Pending, &st.Successful, &st.Failed)
	if err != nil {
		return Stats{}, err
	}
	if st.Total > 0 {
		pct := float64(st.Successful+st.Failed) / float64(st.Total) * 100
		st.ProcessedPercentage = math.Round(pct*100) / 100
	}
	return st, nil
}

// ClearAll deletes every complaint and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM complaints`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.log.Warn().Int64("deleted", n).Msg("cleared all complaints")
	return n, nil
}

const complaintColumns = `id, order_id, name, email, contact_number, product_name, purchase_date, category,
	description, photo_proof_link, importance_level, status, root_cause, suggested_solution, received_at, processed_at`

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	return s.getByID(ctx, id)
}

func (s *Store) getByID(ctx context.Context, id string) (*domain.Complaint, error) {
	return s.queryOne(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = ?`, id)
}

// GetByNaturalKey looks a complaint up by order id; nil when absent.
func (s *Store) GetByNaturalKey(ctx context.Context, orderID string) (*domain.Complaint, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	return s.queryOne(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE order_id = ?`, orderID)
}

// Find matches a complaint id or an order id, ignoring case.
func (s *Store) Find(ctx context.Context, idOrOrderID string) (*domain.Complaint, error) {
	key := strings.TrimSpace(idOrOrderID)
	if key == "" {
		return nil, nil
	}
	return s.queryOne(ctx,
		`SELECT `+complaintColumns+` FROM complaints
		 WHERE lower(id) = lower(?) OR (order_id <> '' AND lower(order_id) = lower(?))
		 ORDER BY CASE WHEN lower(id) = lower(?) THEN 0 ELSE 1 END, rowid LIMIT 1`,
		key, key, key)
}

func (s *Store) All(ctx context.Context) ([]domain.Complaint, error) {
	return s.queryComplaints(ctx, `SELECT `+complaintColumns+` FROM complaints ORDER BY rowid`)
}

// Breakdown aggregates complaints per category and importance level and
// averages the hours between receipt and processing.
func (s *Store) Breakdown(ctx context.Context) (Breakdown, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	b := Breakdown{
		ByCategory:   map[string]int{},
		ByImportance: map[domain.Importance]int{},
	}
	var hours float64
	for _, c := range all {
		cat := strings.TrimSpace(c.Category)
		if cat == "" {
			cat = "Uncategorized"
		}
		b.ByCategory[cat]++
		b.ByImportance[c.Importance]++
		if c.ProcessedAt != nil {
			hours += c.ProcessedAt.Sub(c.ReceivedAt).Hours()
			b.ProcessedCount++
		}
	}
	if b.ProcessedCount > 0 {
		b.AvgProcessingHours = math.Round(hours/float64(b.ProcessedCount)*100) / 100
	}
	b.TopCategory = topKey(b.ByCategory)
	imp := make(map[string]int, len(b.ByImportance))
	for k, v := range b.ByImportance {
		imp[string(k)] = v
	}
	b.TopImportance = domain.Importance(topKey(imp))
	return b, nil
}

// topKey picks the most frequent key, breaking ties alphabetically.
func topKey(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := ""
	for _, k := range keys {
		if best == "" || m[k] > m[best] {
			best = k
		}
	}
	return best
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*domain.Complaint, error) {
	list, err := s.queryComplaints(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (s *Store) queryComplaints(ctx context.Context, query string, args ...any) ([]domain.Complaint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanComplaint(rows *sql.Rows) (domain.Complaint, error) {
	var (
		c           domain.Complaint
		importance  string
		status      string
		rootCause   sql.NullString
		solution    sql.NullString
		processedAt sql.NullTime
	)
	err := rows.Scan(
		&c.ID, &c.OrderID, &c.Name, &c.Email, &c.ContactNumber, &c.ProductName, &c.PurchaseDate,
		&c.Category, &c.Description, &c.PhotoProofLink, &importance, &status,
		&rootCause, &solution, &c.ReceivedAt, &processedAt,
	)
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("scan complaint: %w", err)
	}
	c.Importance = domain.ParseImportance(importance)
	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("complaint %s: %w", c.ID, err)
	}
	c.Status = st
	c.RootCause = rootCause.String
	c.SuggestedSolution = solution.String
	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	return c, nil
}
