package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"complaintbot/internal/domain"
	"complaintbot/internal/storage/sqlite"

	"github.com/jung-kurt/gofpdf"
)

// Report is the snapshot rendered by the PDF and dashboard writers.
type Report struct {
	GeneratedAt time.Time
	Stats       sqlite.Stats
	Breakdown   sqlite.Breakdown
	// Highlights are listed with their analysis in the PDF, usually the
	// Critical and High complaints.
	Highlights []domain.Complaint
}

// MaxHighlights caps the complaint section of the PDF.
const MaxHighlights = 20

// SelectHighlights keeps processed Critical and High complaints, most
// severe first, then most recent.
func SelectHighlights(all []domain.Complaint) []domain.Complaint {
	var out []domain.Complaint
	for _, c := range all {
		if c.Status != domain.StatusSuccessful {
			continue
		}
		if c.Importance == domain.ImportanceCritical || c.Importance == domain.ImportanceHigh {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance == domain.ImportanceCritical
		}
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if len(out) > MaxHighlights {
		out = out[:MaxHighlights]
	}
	return out
}

func WritePDFReport(w io.Writer, r Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Complaint Analysis Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "Generated "+r.GeneratedAt.UTC().Format(timeLayout)+" UTC", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Overview")
	table(pdf, tr, []string{"Total", "Pending", "Successful", "Failed", "Processed"}, [][]string{{
		fmt.Sprint(r.Stats.Total),
		fmt.Sprint(r.Stats.Pending),
		fmt.Sprint(r.Stats.Successful),
		fmt.Sprint(r.Stats.Failed),
		fmt.Sprintf("%.2f%%", r.Stats.ProcessedPercentage),
	}})
	if r.Breakdown.ProcessedCount > 0 {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Average processing time: %.1f hours over %d complaints",
			r.Breakdown.AvgProcessingHours, r.Breakdown.ProcessedCount), "", 1, "", false, 0, "")
	}
	pdf.Ln(3)

	section(pdf, "By importance")
	var rows [][]string
	for _, level := range domain.Importances {
		rows = append(rows, []string{string(level), fmt.Sprint(r.Breakdown.ByImportance[level])})
	}
	table(pdf, tr, []string{"Importance", "Complaints"}, rows)
	pdf.Ln(3)

	section(pdf, "By category")
	rows = rows[:0]
	for _, kv := range sortedCounts(r.Breakdown.ByCategory) {
		rows = append(rows, []string{kv.key, fmt.Sprint(kv.n)})
	}
	if len(rows) == 0 {
		rows = append(rows, []string{"-", "0"})
	}
	table(pdf, tr, []string{"Category", "Complaints"}, rows)
	pdf.Ln(3)

	if len(r.Highlights) > 0 {
		section(pdf, "Critical and high importance complaints")
		for _, c := range r.Highlights {
			pdf.SetFont("Arial", "B", 10)
			head := fmt.Sprintf("%s  [%s]  %s", c.ID, c.Importance, c.Category)
			pdf.MultiCell(0, 6, tr(head), "", "", false)
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, tr(c.Description), "", "", false)
			points(pdf, tr, "Root causes", c.RootCause)
			points(pdf, tr, "Suggested solutions", c.SuggestedSolution)
			pdf.Ln(2)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "", false, 0, "")
}

func table(pdf *gofpdf.Fpdf, tr func(string) string, headers []string, rows [][]string) {
	colWidth := 180.0 / float64(len(headers))
	pdf.SetFont("Arial", "B", 9)
	for _, h := range headers {
		pdf.CellFormat(colWidth, 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		for _, v := range row {
			pdf.CellFormat(colWidth, 6, tr(clip(v, 60)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func points(pdf *gofpdf.Fpdf, tr func(string) string, label, stored string) {
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 5, label+":", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for i, p := range domain.SplitPoints(stored) {
		if p = domain.StripPointPrefix(p); p == "" {
			continue
		}
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("  %d. %s", i+1, p)), "", "", false)
	}
}

type count struct {
	key string
	n   int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
