package processing

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"complaintbot/internal/analysis"
	"complaintbot/internal/domain"
	"complaintbot/internal/ingest"
	"complaintbot/internal/integrations/llm"
	"complaintbot/internal/storage/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `{"root_cause": ["1. Thin nitrile", "2. Long storage", "3. Rough donning"],
"suggested_solution": ["1. Thicker gauge", "2. Rotate stock", "3. Train staff"]}`

func noSleep(context.Context, time.Duration) error { return nil }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "processing-test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// keyedCompleter replies per complaint: each description marker gets its
// own scripted sequence, the last entry repeating.
type keyedCompleter struct {
	mu      sync.Mutex
	scripts map[string][]string
	errs    map[string]error
	calls   map[string]int
	onCall  func(marker string)
}

func (k *keyedCompleter) Complete(_ context.Context, conv llm.Conversation) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	prompt := conv.Messages[0].Content
	for marker, script := range k.scripts {
		if !strings.Contains(prompt, marker) {
			continue
		}
		n := k.calls[marker]
		k.calls[marker] = n + 1
		if k.onCall != nil {
			k.onCall(marker)
		}
		if err := k.errs[marker]; err != nil {
			return "", err
		}
		if n >= len(script) {
			n = len(script) - 1
		}
		return script[n], nil
	}
	return validReply, nil
}

func newKeyed(scripts map[string][]string) *keyedCompleter {
	return &keyedCompleter{scripts: scripts, errs: map[string]error{}, calls: map[string]int{}}
}

func newOrchestrator(st Store, c llm.Completer) *Orchestrator {
	client := analysis.NewClient(c, analysis.Options{Sleep: noSleep}, zerolog.Nop())
	return New(st, client, Options{Sleep: noSleep}, zerolog.Nop())
}

func ingestRows(t *testing.T, st *sqlite.Store, rows []ingest.Row) {
	t.Helper()
	res, err := ingest.NewMerger(st, nil, time.UTC, zerolog.Nop()).Merge(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, len(rows), res.Added)
}

func TestRunRecoversFromMalformedReplies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ingestRows(t, st, []ingest.Row{
		{"Order ID": "ORD-1", "Complaint Category": "Quality Issue", "Description": "gloves-tear-at-thumb"},
		{"Order ID": "ORD-2", "Description": "box-count-short"},
	})

	a, err := st.GetByNaturalKey(ctx, "ORD-1")
	require.NoError(t, err)
	b, err := st.GetByNaturalKey(ctx, "ORD-2")
	require.NoError(t, err)
	assert.Equal(t, "COMP-000001", a.ID)
	assert.Equal(t, "COMP-000002", b.ID)

	fake := newKeyed(map[string][]string{
		"gloves-tear-at-thumb": {"I think it is probably the material.", "{\"root_cause\": ", validReply},
		"box-count-short":      {validReply},
	})

	sum, err := newOrchestrator(st, fake).Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Successful)
	assert.Zero(t, sum.Failed)
	assert.False(t, sum.Interrupted)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, []string{"COMP-000001", "COMP-000002"}, sum.Analyzed)

	assert.Equal(t, 3, fake.calls["gloves-tear-at-thumb"])
	assert.Equal(t, 1, fake.calls["box-count-short"])

	got, err := st.GetByID(ctx, "COMP-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, got.Status)
	assert.Equal(t, "1. Thin nitrile\n2. Long storage\n3. Rough donning", got.RootCause)
	assert.Equal(t, domain.ImportanceHigh, got.Importance)
	require.NotNil(t, got.ProcessedAt)

	pending, err := st.SelectPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunRetriesTransportFailuresThenMarksFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ingestRows(t, st, []ingest.Row{{"Order ID": "ORD-1", "Description": "network-down"}})

	fake := newKeyed(map[string][]string{"network-down": {validReply}})
	fake.errs["network-down"] = &llm.StatusError{Code: 503, Body: "unavailable"}

	var waits []time.Duration
	client := analysis.NewClient(fake, analysis.Options{Sleep: noSleep}, zerolog.Nop())
	orch := New(st, client, Options{
		BackoffInitial: time.Second,
		BackoffMax:     10 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}, zerolog.Nop())

	sum, err := orch.Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 9, fake.calls["network-down"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)

	got, err := st.GetByID(ctx, "COMP-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, sqlite.ProcessingErrorRootCause, got.RootCause)
	assert.Contains(t, got.SuggestedSolution, "Failed to process after 3 attempts (9 model calls)")
}

func TestRunDoesNotRetryMalformedExhaustion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ingestRows(t, st, []ingest.Row{{"Order ID": "ORD-1", "Description": "always-garbled"}})

	fake := newKeyed(map[string][]string{"always-garbled": {"no idea what happened here"}})
	sum, err := newOrchestrator(st, fake).Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, fake.calls["always-garbled"])

	got, _ := st.GetByID(ctx, "COMP-000001")
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.SuggestedSolution, "Failed to process after 1 attempt (3 model calls)")
}

func TestRunMarksEmptyComplaintFailedWithoutCalls(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ingestRows(t, st, []ingest.Row{{"Order ID": "ORD-1", "Name": "No description"}})

	fake := newKeyed(nil)
	sum, err := newOrchestrator(st, fake).Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, fake.calls)

	got, _ := st.GetByID(ctx, "COMP-000001")
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.SuggestedSolution, "empty complaint")
	assert.Contains(t, got.SuggestedSolution, "after 1 attempt (0 model calls)")
}

func TestRunIncludeFailedReprocesses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ingestRows(t, st, []ingest.Row{{"Order ID": "ORD-1", "Description": "flaky"}})

	fake := newKeyed(map[string][]string{"flaky": {"garbage garbage", "garbage garbage", "garbage garbage", validReply}})
	orch := newOrchestrator(st, fake)

	sum, err := orch.Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	sum, err = orch.Run(ctx, ModePending)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)

	sum, err = orch.Run(ctx, ModePendingAndFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Successful)

	got, _ := st.GetByID(ctx, "COMP-000001")
	assert.Equal(t, domain.StatusSuccessful, got.Status)
}

func TestRunStopsBetweenComplaintsOnCancel(t *testing.T) {
	st := newTestStore(t)
	ingestRows(t, st, []ingest.Row{
		{"Order ID": "ORD-1", "Description": "first-one"},
		{"Order ID": "ORD-2", "Description": "second-one"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := newKeyed(map[string][]string{"first-one": {validReply}, "second-one": {validReply}})
	fake.onCall = func(string) { cancel() }

	sum, err := newOrchestrator(st, fake).Run(ctx, ModePending)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 1, sum.Successful)
	assert.Zero(t, fake.calls["second-one"])

	bg := context.Background()
	first, _ := st.GetByID(bg, "COMP-000001")
	second, _ := st.GetByID(bg, "COMP-000002")
	assert.Equal(t, domain.StatusSuccessful, first.Status)
	assert.Equal(t, domain.StatusPending, second.Status)
}

type panicAnalyzer struct{ calls int }

func (p *panicAnalyzer) Analyze(context.Context, string) analysis.Result {
	p.calls++
	if p.calls > 1 {
		panic("analyzer exploded")
	}
	return analysis.Result{
		RootCause:         domain.Scalar("worn mould"),
		SuggestedSolution: domain.Scalar("replace mould"),
		Attempts:          1,
	}
}

func TestRunRecoversPanicKeepingEarlierWork(t *testing.T) {
	st := newTestStore(t)
	ingestRows(t, st, []ingest.Row{
		{"Order ID": "ORD-1", "Description": "one"},
		{"Order ID": "ORD-2", "Description": "two"},
	})

	orch := New(st, &panicAnalyzer{}, Options{Sleep: noSleep}, zerolog.Nop())
	_, err := orch.Run(context.Background(), ModePending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzer exploded")

	first, _ := st.GetByID(context.Background(), "COMP-000001")
	assert.Equal(t, domain.StatusSuccessful, first.Status)
}

type failingStore struct {
	list        []domain.Complaint
	selectErr   error
	completeErr error
}

func (f *failingStore) SelectByStatus(context.Context, ...domain.Status) ([]domain.Complaint, error) {
	return f.list, f.selectErr
}

func (f *failingStore) CompleteAnalysis(context.Context, string, domain.AnalysisField, domain.AnalysisField, string) (bool, error) {
	return false, f.completeErr
}

func (f *failingStore) MarkFailed(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestRunCountsPersistErrors(t *testing.T) {
	st := &failingStore{
		list:        []domain.Complaint{{ID: "COMP-000001", Description: "x"}, {ID: "COMP-000002", Description: ""}},
		completeErr: errors.New("disk full"),
	}
	sum, err := newOrchestrator(st, newKeyed(nil)).Run(context.Background(), ModePending)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PersistErrors)
	assert.Zero(t, sum.Successful)
	assert.Zero(t, sum.Failed)
}

func TestRunSelectError(t *testing.T) {
	st := &failingStore{selectErr: errors.New("locked")}
	_, err := newOrchestrator(st, newKeyed(nil)).Run(context.Background(), ModePending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}
