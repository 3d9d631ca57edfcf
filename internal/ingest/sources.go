package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVFileSource reads a form-responses export with a header line.
type CSVFileSource struct {
	Path string
}

func (s CSVFileSource) Name() string { return "csv:" + s.Path }

func (s CSVFileSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV turns CSV text into rows keyed by the first line's headers.
// Short lines are tolerated; blank lines are dropped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", len(rows)+2, err)
		}
		row := make(Row, len(header))
		blank := true
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
				if strings.TrimSpace(rec[i]) != "" {
					blank = false
				}
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// DemoSource serves a fixed set of glove-supply complaints for trying the
// pipeline without a spreadsheet.
type DemoSource struct{}

func (DemoSource) Name() string { return "demo" }

func (DemoSource) Rows(context.Context) ([]Row, error) {
	rows := make([]Row, 0, len(demoComplaints))
	for i, d := range demoComplaints {
		rows = append(rows, Row{
			"Timestamp":          d.receivedAt,
			"Order ID":           fmt.Sprintf("DEMO-%03d", i+1),
			"Email":              d.sender,
			"Product Name":       "Nitrile examination gloves",
			"Complaint Category": d.subject,
			"Description":        d.body,
		})
	}
	return rows, nil
}

type demoComplaint struct {
	sender     string
	subject    string
	body       string
	receivedAt string
}

var demoComplaints = []demoComplaint{
	{"john.doe@hospital.com", "Quality Issue - Torn Gloves",
		"Multiple gloves from batch #GL2023-456 are tearing during use. This is causing serious concerns for staff safety. The tears typically appear around the thumb area when the gloves are being put on. We've had 5 incidents reported in the past week.",
		"2024-03-20T09:30:00"},
	{"sarah.smith@clinic.org", "Allergic Reaction to Gloves",
		"Several staff members reported skin irritation and rashes after using gloves from batch #GL2023-789. The symptoms appear within 30 minutes of wear and include redness, itching, and mild swelling. This affects about 20% of our staff who used this batch.",
		"2024-03-20T10:15:00"},
	{"mike.wilson@medlab.com", "Inconsistent Sizing",
		"The medium size gloves from recent shipment (batch #GL2023-567) are significantly larger than our previous orders. This is causing handling issues during delicate procedures. The variation seems to be about 1-2 sizes larger than standard medium size.",
		"2024-03-20T11:00:00"},
	{"emily.chen@surgery.net", "Powder Residue Issue",
		"Despite ordering powder-free gloves (batch #GL2023-890), we're finding significant powder residue inside the gloves. This is causing contamination concerns during sterile procedures. The residue is visible on dark surfaces and transfers to hands and instruments.",
		"2024-03-20T13:45:00"},
	{"david.brown@healthcare.com", "Packaging Damage",
		"Received a shipment where 30% of the boxes show water damage (order #ORD2023-123). The sterile packaging of individual glove pairs appears compromised in these boxes. This affects approximately 50 boxes from the shipment received on March 15th.",
		"2024-03-20T15:20:00"},
	{"lisa.jones@hospital.com", "Defective Seams",
		"Batch #GL2023-901 shows consistent seam defects along the wrist area. Several gloves have split at the seams during procedures. This is a critical safety concern that needs immediate attention.",
		"2024-03-21T09:00:00"},
	{"robert.zhang@clinic.org", "Color Variation Issue",
		"The latest shipment of blue nitrile gloves (batch #GL2023-902) shows significant color variation. Some gloves are much lighter than standard, making it difficult to distinguish from white latex gloves, which is a potential safety issue.",
		"2024-03-21T10:30:00"},
	{"maria.garcia@medcenter.com", "Packaging Error",
		"Received mixed sizes in boxes labeled as 'Large' (batch #GL2023-903). Each box contains approximately 20% medium size gloves. This is causing delays during procedures when staff need to verify sizes.",
		"2024-03-21T11:45:00"},
	{"james.wilson@surgery.org", "Static Issue",
		"Excessive static in gloves from batch #GL2023-904 is causing problems during precise procedures. The static is attracting small particles and making it difficult to handle small instruments accurately.",
		"2024-03-21T13:15:00"},
	{"anna.patel@healthcare.net", "Thickness Inconsistency",
		"Noticed significant thickness variation in gloves from batch #GL2023-905. Some gloves are too thin and lack proper protection, while others are too thick and reduce tactile sensitivity.",
		"2024-03-21T14:30:00"},
	{"thomas.anderson@hospital.org", "Expired Product Delivery",
		"Received a shipment of gloves (batch #GL2023-906) with expiration dates already passed. The entire batch shows manufacturing date of 2021 and expiration of early 2024.",
		"2024-03-21T15:45:00"},
	{"susan.lee@clinic.com", "Chemical Odor",
		"Strong chemical odor detected in batch #GL2023-907. Staff members report headaches and nausea after prolonged use. Concerned about potential chemical exposure.",
		"2024-03-21T16:30:00"},
	{"peter.walsh@medlab.org", "Texture Issue",
		"Batch #GL2023-908 has an unusually slippery texture, making it difficult to grip instruments securely. This is particularly problematic during surgical procedures requiring precise handling.",
		"2024-03-22T09:15:00"},
	{"rachel.kim@surgery.com", "Box Count Discrepancy",
		"Multiple boxes from batch #GL2023-909 contain fewer gloves than specified. Boxes labeled as 100 pieces consistently contain only 90-95 gloves.",
		"2024-03-22T10:45:00"},
	{"michael.brown@healthcare.org", "Sterilization Indicator Missing",
		"Sterilization indicators missing from batch #GL2023-910 packaging. Cannot verify if the gloves meet sterility requirements for surgical procedures. Entire shipment of 100 boxes affected.",
		"2024-03-22T11:30:00"},
}
