package sheets

import (
	"context"
	"testing"

	"complaintbot/internal/ingest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowsFromValues(t *testing.T) {
	values := [][]interface{}{
		{"Timestamp", "Order ID", "Description", ""},
		{"3/20/2024 9:30:00", "ORD-1", "Gloves tear", "stray"},
		{"3/20/2024 9:31:00", "ORD-2"},
		{"", nil, " "},
		{"3/20/2024 9:32:00", 1042, "Numeric order id"},
	}

	rows := RowsFromValues(values)
	require.Len(t, rows, 3)
	assert.Equal(t, ingest.Row{"Timestamp": "3/20/2024 9:30:00", "Order ID": "ORD-1", "Description": "Gloves tear"}, rows[0])
	assert.Equal(t, ingest.Row{"Timestamp": "3/20/2024 9:31:00", "Order ID": "ORD-2"}, rows[1])
	assert.Equal(t, "1042", rows[2]["Order ID"])
}

func TestRowsFromValuesEmpty(t *testing.T) {
	assert.Nil(t, RowsFromValues(nil))
	assert.Empty(t, RowsFromValues([][]interface{}{{"Timestamp"}}))
}

func TestNewSourceRequiresConfig(t *testing.T) {
	_, err := NewSource(context.Background(), Config{CredentialsFile: "creds.json"}, 0, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewSource(context.Background(), Config{SpreadsheetID: "abc"}, 0, zerolog.Nop())
	assert.Error(t, err)
}
