// Package sheets reads Google Forms responses from a spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"complaintbot/internal/ingest"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const DefaultRange = "Form Responses 1"

type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	// Range is an A1 range or a bare sheet name.
	Range string
}

// Source is an ingest.RowSource backed by the Sheets API.
type Source struct {
	cfg     Config
	svc     *gsheets.Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewSource authenticates with a service account credentials file. Each
// read is bounded by timeout when it is positive.
func NewSource(ctx context.Context, cfg Config, timeout time.Duration, log zerolog.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, fmt.Errorf("sheets: credentials file is required")
	}
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Source{cfg: cfg, svc: svc, timeout: timeout, log: log.With().Str("component", "sheets").Logger()}, nil
}

func (s *Source) Name() string { return "sheets:" + s.cfg.SpreadsheetID }

func (s *Source) Rows(ctx context.Context) ([]ingest.Row, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, s.cfg.Range).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", s.cfg.Range, err)
	}
	rows := RowsFromValues(resp.Values)
	s.log.Debug().Int("rows", len(rows)).Str("range", s.cfg.Range).Msg("sheet values read")
	return rows, nil
}

// RowsFromValues turns a header row plus data rows into records. Trailing
// empty cells are omitted by the API, so short rows are normal.
func RowsFromValues(values [][]interface{}) []ingest.Row {
	if len(values) == 0 {
		return nil
	}
	header := make([]string, len(values[0]))
	for i, h := range values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(h))
	}

	rows := make([]ingest.Row, 0, len(values)-1)
	for _, line := range values[1:] {
		row := make(ingest.Row, len(header))
		blank := true
		for i, h := range header {
			if h == "" || i >= len(line) || line[i] == nil {
				continue
			}
			v := fmt.Sprint(line[i])
			row[h] = v
			if strings.TrimSpace(v) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}
