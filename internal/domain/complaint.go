package domain

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusSuccessful Status = "Successful"
	StatusFailed     Status = "Failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccessful, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the store may move a record from s to
// next. A successful analysis is never overwritten by a failure; only a
// reset returns a record to Pending.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSuccessful || next == StatusFailed
	case StatusFailed:
		return next == StatusSuccessful || next == StatusFailed || next == StatusPending
	case StatusSuccessful:
		return next == StatusSuccessful || next == StatusPending
	default:
		return false
	}
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "successful", "success", "processed":
		return StatusSuccessful, nil
	case "failed", "failure":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

type Importance string

const (
	ImportanceLow      Importance = "Low"
	ImportanceMedium   Importance = "Medium"
	ImportanceHigh     Importance = "High"
	ImportanceCritical Importance = "Critical"
)

// Importances lists every level from least to most severe.
var Importances = []Importance{ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical}

func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	default:
		return false
	}
}

// ParseImportance maps a user or model supplied level onto the enum.
// Anything unrecognized falls back to Medium.
func ParseImportance(s string) Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImportanceLow
	case "high":
		return ImportanceHigh
	case "critical":
		return ImportanceCritical
	default:
		return ImportanceMedium
	}
}

type Complaint struct {
	ID                string
	OrderID           string // natural key, empty when the source row had none
	Name              string
	Email             string
	ContactNumber     string
	ProductName       string
	PurchaseDate      string
	Category          string
	Description       string
	PhotoProofLink    string
	Importance        Importance
	Status            Status
	RootCause         string // empty while pending
	SuggestedSolution string // empty while pending; error text when failed
	ReceivedAt        time.Time
	ProcessedAt       *time.Time
}

// NewComplaint is the creation shape handed to the store by the merger.
type NewComplaint struct {
	ID             string
	OrderID        string
	Name           string
	Email          string
	ContactNumber  string
	ProductName    string
	PurchaseDate   string
	Category       string
	Description    string `validate:"required_without=OrderID"`
	PhotoProofLink string
	ReceivedAt     time.Time `validate:"required"`
}

// AnalysisText is the text sent to the model for one complaint.
func (c Complaint) AnalysisText() string {
	if strings.TrimSpace(c.Description) == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Complaint Category: %s\n", strings.TrimSpace(c.Category))
	fmt.Fprintf(&b, "Product: %s\n", strings.TrimSpace(c.ProductName))
	fmt.Fprintf(&b, "Order ID: %s\n", strings.TrimSpace(c.OrderID))
	fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(c.Description))
	return b.String()
}
