package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"complaintbot/internal/config"
	"complaintbot/internal/ingest"
	"complaintbot/internal/integrations/llm"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cannedReply = `{"root_cause": ["1. Thin nitrile", "2. Long storage", "3. Rough donning"],
"suggested_solution": ["1. Thicker gauge", "2. Rotate stock", "3. Train staff"]}`

type cannedCompleter struct{ calls int }

func (c *cannedCompleter) Complete(context.Context, llm.Conversation) (string, error) {
	c.calls++
	return cannedReply, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

// newTestApp builds an App on a temp database with a canned model and the
// demo rows as its configured source. input feeds confirmation prompts.
func newTestApp(t *testing.T, input string) (*App, *bytes.Buffer, *cannedCompleter) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DBPath:    filepath.Join(dir, "app-test.db"),
		ExportDir: filepath.Join(dir, "exports"),
		Location:  time.UTC,
	}
	out := &bytes.Buffer{}
	a, err := New(cfg, zerolog.Nop(), strings.NewReader(input), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	completer := &cannedCompleter{}
	a.newCompleter = func() (llm.Completer, error) { return completer, nil }
	a.newSource = func(context.Context) (ingest.RowSource, error) { return ingest.DemoSource{}, nil }
	a.sleep = noSleep
	a.now = func() time.Time { return time.Date(2024, 3, 25, 8, 30, 0, 0, time.UTC) }
	return a, out, completer
}

func runCmd(t *testing.T, a *App, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, a.Run(context.Background(), args))
	return out.String()
}

func TestDemoAndStats(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	assert.Contains(t, runCmd(t, a, out, "demo"), "Loaded from demo: 15 added, 0 already known")
	assert.Contains(t, runCmd(t, a, out, "load"), "0 added, 15 already known")

	stats := runCmd(t, a, out, "stats")
	assert.Regexp(t, `Total complaints:\s+15`, stats)
	assert.Regexp(t, `Pending:\s+15`, stats)
	assert.Regexp(t, `Processed:\s+0\.00%`, stats)
	assert.Contains(t, stats, "By category:")
	assert.NotContains(t, stats, "Average processing time")
}

func TestProcessShowAndList(t *testing.T) {
	a, out, completer := newTestApp(t, "")
	runCmd(t, a, out, "demo")

	assert.Contains(t, runCmd(t, a, out, "process"), "Processed 15 of 15 complaints: 15 successful, 0 failed")
	assert.Equal(t, 15, completer.calls)
	assert.Contains(t, runCmd(t, a, out, "process"), "No complaints to process.")

	show := runCmd(t, a, out, "show", "DEMO-001")
	assert.Contains(t, show, "COMP-000001")
	assert.Contains(t, show, "Successful")
	assert.Contains(t, show, "Root cause:")
	assert.Contains(t, show, "  1. Thin nitrile")
	assert.Contains(t, show, "  3. Train staff")

	list := runCmd(t, a, out, "list", "-n", "2")
	assert.Contains(t, list, "IMPORTANCE")
	assert.Contains(t, list, "COMP-000001")
	assert.Contains(t, list, "COMP-000002")
	assert.NotContains(t, list, "COMP-000003")
	assert.Contains(t, list, "... 13 more")

	assert.Contains(t, runCmd(t, a, out, "list", "-status", "pending"), "No complaints.")
	assert.Error(t, a.Run(context.Background(), []string{"list", "-status", "archived"}))
}

func TestProcessNeedsModel(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	runCmd(t, a, out, "demo")
	a.newCompleter = func() (llm.Completer, error) { return nil, errors.New("openai_api_key is required") }

	err := a.Run(context.Background(), []string{"process"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai_api_key")
}

func TestClearNeedsExactPhrase(t *testing.T) {
	a, out, _ := newTestApp(t, "y\ndelete all\n")
	runCmd(t, a, out, "demo")

	assert.Contains(t, runCmd(t, a, out, "clear"), "did not match")
	assert.Regexp(t, `Total complaints:\s+15`, runCmd(t, a, out, "stats"))

	a.in = bufio.NewReader(strings.NewReader("y\nDELETE ALL\n"))
	assert.Contains(t, runCmd(t, a, out, "clear"), "Deleted 15 complaints.")
	assert.Regexp(t, `Total complaints:\s+0`, runCmd(t, a, out, "stats"))
}

func TestResetAfterProcessing(t *testing.T) {
	a, out, _ := newTestApp(t, "yes\nRESET ALL\n")
	runCmd(t, a, out, "demo")
	runCmd(t, a, out, "process")

	assert.Contains(t, runCmd(t, a, out, "reset"), "Reset 15 successful and 0 failed complaints to Pending.")
	assert.Regexp(t, `Pending:\s+15`, runCmd(t, a, out, "stats"))
}

func TestRefreshReloadsAndProcesses(t *testing.T) {
	a, out, completer := newTestApp(t, "y\nREFRESH ALL\n")
	runCmd(t, a, out, "demo")

	got := runCmd(t, a, out, "refresh")
	assert.Contains(t, got, "Deleted 15 complaints.")
	assert.Contains(t, got, "Loaded from demo: 15 added")
	assert.Contains(t, got, "Processed 15 of 15 complaints")
	assert.Equal(t, 15, completer.calls)
}

func TestRefreshDeclined(t *testing.T) {
	a, out, completer := newTestApp(t, "n\n")
	runCmd(t, a, out, "demo")

	assert.Contains(t, runCmd(t, a, out, "refresh"), "Cancelled.")
	assert.Zero(t, completer.calls)
	assert.Regexp(t, `Total complaints:\s+15`, runCmd(t, a, out, "stats"))
}

type brokenSource struct{}

func (brokenSource) Name() string { return "sheets" }

func (brokenSource) Rows(context.Context) ([]ingest.Row, error) {
	return nil, errors.New("invalid_grant")
}

func TestRefreshKeepsDataWhenSourceFails(t *testing.T) {
	t.Run("fetch fails", func(t *testing.T) {
		a, out, completer := newTestApp(t, "y\nREFRESH ALL\n")
		runCmd(t, a, out, "demo")
		a.newSource = func(context.Context) (ingest.RowSource, error) { return brokenSource{}, nil }

		err := a.Run(context.Background(), []string{"refresh"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_grant")
		assert.Zero(t, completer.calls)
		assert.Regexp(t, `Total complaints:\s+15`, runCmd(t, a, out, "stats"))
	})
	t.Run("source cannot be built", func(t *testing.T) {
		a, out, _ := newTestApp(t, "y\nREFRESH ALL\n")
		runCmd(t, a, out, "demo")
		a.newSource = func(context.Context) (ingest.RowSource, error) {
			return nil, errors.New("sheets: credentials file is required")
		}

		err := a.Run(context.Background(), []string{"refresh"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credentials")
		assert.Regexp(t, `Total complaints:\s+15`, runCmd(t, a, out, "stats"))
	})
}

func TestExportFormats(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	runCmd(t, a, out, "demo")
	runCmd(t, a, out, "process")
	dir := t.TempDir()

	cases := map[string]string{
		"csv": "Complaint ID,Order ID",
		"pdf": "%PDF-",
		"png": "\x89PNG",
	}
	for format, prefix := range cases {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, "out."+format)
			assert.Contains(t, runCmd(t, a, out, "export", "-format", format, "-out", path), path)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, []byte(prefix)), "unexpected %s header", format)
		})
	}
}

func TestExportDefaultPath(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	runCmd(t, a, out, "demo")

	want := filepath.Join(a.cfg.ExportDir, "complaints_20240325_083000.csv")
	assert.Contains(t, runCmd(t, a, out, "export"), want)
	assert.FileExists(t, want)

	err := a.Run(context.Background(), []string{"export", "-format", "xlsx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx")
}

func TestReportJobWritesFiles(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	runCmd(t, a, out, "demo")

	require.NoError(t, a.reportJob(context.Background()))
	assert.FileExists(t, filepath.Join(a.cfg.ExportDir, "report_20240325_083000.pdf"))
	assert.FileExists(t, filepath.Join(a.cfg.ExportDir, "report_20240325_083000.png"))
}

func TestProcessJobLoadsThenAnalyzes(t *testing.T) {
	a, out, completer := newTestApp(t, "")
	orch, err := a.orchestrator()
	require.NoError(t, err)

	require.NoError(t, a.processJob(context.Background(), orch))
	assert.Equal(t, 15, completer.calls)
	assert.Regexp(t, `Successful:\s+15`, runCmd(t, a, out, "stats"))
}

func TestRunUsageErrors(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	assert.ErrorIs(t, a.Run(context.Background(), nil), errUsage)
	assert.ErrorIs(t, a.Run(context.Background(), []string{"launch"}), errUsage)
	assert.ErrorIs(t, a.Run(context.Background(), []string{"show"}), errUsage)
	assert.ErrorIs(t, a.Run(context.Background(), []string{"process", "-bogus"}), errUsage)
	assert.Contains(t, runCmd(t, a, out, "help"), "usage: complaintbot")
}

func TestShowUnknown(t *testing.T) {
	a, _, _ := newTestApp(t, "")
	err := a.Run(context.Background(), []string{"show", "COMP-999999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no complaint matches")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"accepted", "y\nWIPE\n", true},
		{"yes spelled out", "YES\nWIPE\n", true},
		{"declined", "n\nWIPE\n", false},
		{"wrong phrase", "y\nwipe\n", false},
		{"empty input", "", false},
		{"no trailing newline", "y\nWIPE", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			ok, err := confirm(bufio.NewReader(strings.NewReader(tc.input)), out, "wipe things", "WIPE")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.Contains(t, out.String(), "This will wipe things.")
		})
	}
}
