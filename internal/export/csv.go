// Package export writes complaints and report summaries as CSV, PDF and PNG.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"complaintbot/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Columns is the fixed CSV header order.
var Columns = []string{
	"Complaint ID", "Order ID", "Name", "Email", "Contact Number", "Product Name",
	"Purchase Date", "Complaint Category", "Description", "Photo Proof Link",
	"Importance Level", "Status",
	"Root Cause 1", "Root Cause 2", "Root Cause 3",
	"Suggested Solution 1", "Suggested Solution 2", "Suggested Solution 3",
	"Received At", "Processed At",
}

// Record flattens one complaint into Columns order. Stored analysis text is
// re-split into its three points.
func Record(c domain.Complaint) []string {
	rc := domain.SplitPoints(c.RootCause)
	sol := domain.SplitPoints(c.SuggestedSolution)
	processed := ""
	if c.ProcessedAt != nil {
		processed = formatTime(*c.ProcessedAt)
	}
	return []string{
		c.ID, c.OrderID, c.Name, c.Email, c.ContactNumber, c.ProductName,
		c.PurchaseDate, c.Category, c.Description, c.PhotoProofLink,
		string(c.Importance), string(c.Status),
		rc[0], rc[1], rc[2],
		sol[0], sol[1], sol[2],
		formatTime(c.ReceivedAt), processed,
	}
}

func WriteCSV(w io.Writer, complaints []domain.Complaint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, c := range complaints {
		if err := cw.Write(Record(c)); err != nil {
			return fmt.Errorf("write csv row %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
