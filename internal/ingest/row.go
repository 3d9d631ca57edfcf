// Package ingest maps spreadsheet rows onto complaints and merges them into
// the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"complaintbot/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Row is one spreadsheet record keyed by its header text.
type Row map[string]string

// RowSource yields the rows of one spreadsheet snapshot.
type RowSource interface {
	Name() string
	Rows(ctx context.Context) ([]Row, error)
}

type field int

const (
	fieldTimestamp field = iota
	fieldOrderID
	fieldName
	fieldEmail
	fieldContact
	fieldProduct
	fieldPurchaseDate
	fieldCategory
	fieldDescription
	fieldPhoto
)

// headerAliases maps normalized header text to a complaint field. Google
// Forms uses the question text as the header, so several spellings occur.
var headerAliases = map[string]field{
	"timestamp":            fieldTimestamp,
	"receivedat":           fieldTimestamp,
	"submittedat":          fieldTimestamp,
	"date":                 fieldTimestamp,
	"orderid":              fieldOrderID,
	"ordernumber":          fieldOrderID,
	"orderno":              fieldOrderID,
	"order":                fieldOrderID,
	"orderreference":       fieldOrderID,
	"name":                 fieldName,
	"fullname":             fieldName,
	"customername":         fieldName,
	"yourname":             fieldName,
	"email":                fieldEmail,
	"emailaddress":         fieldEmail,
	"sender":               fieldEmail,
	"contactnumber":        fieldContact,
	"contact":              fieldContact,
	"phone":                fieldContact,
	"phonenumber":          fieldContact,
	"productname":          fieldProduct,
	"product":              fieldProduct,
	"purchasedate":         fieldPurchaseDate,
	"dateofpurchase":       fieldPurchaseDate,
	"complaintcategory":    fieldCategory,
	"category":             fieldCategory,
	"issuetype":            fieldCategory,
	"subject":              fieldCategory,
	"description":          fieldDescription,
	"complaintdescription": fieldDescription,
	"complaint":            fieldDescription,
	"details":              fieldDescription,
	"body":                 fieldDescription,
	"photoprooflink":       fieldPhoto,
	"photoproof":           fieldPhoto,
	"photolink":            fieldPhoto,
	"photo":                fieldPhoto,
	"attachment":           fieldPhoto,
}

// NormalizeHeader lowercases h and drops everything but letters and digits.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
	"1/2/2006",
}

// ParseTimestamp accepts ISO and Google Forms style timestamps. Values
// without a zone are read in loc (UTC when nil); the result is UTC.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// MapRow builds the creation shape for a row. Unknown headers are ignored
// and missing ones stay empty; a missing timestamp means now. Timestamps
// without a zone are in loc, the spreadsheet's time zone.
func MapRow(row Row, now time.Time, loc *time.Location) (domain.NewComplaint, error) {
	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	values := map[field]string{}
	for _, header := range headers {
		value := row[header]
		f, ok := headerAliases[NormalizeHeader(header)]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, seen := values[f]; !seen {
			values[f] = value
		}
	}

	rec := domain.NewComplaint{
		OrderID:        values[fieldOrderID],
		Name:           values[fieldName],
		Email:          values[fieldEmail],
		ContactNumber:  values[fieldContact],
		ProductName:    values[fieldProduct],
		PurchaseDate:   values[fieldPurchaseDate],
		Category:       values[fieldCategory],
		Description:    values[fieldDescription],
		PhotoProofLink: values[fieldPhoto],
		ReceivedAt:     now.UTC(),
	}
	if ts, ok := values[fieldTimestamp]; ok {
		t, err := ParseTimestamp(ts, loc)
		if err != nil {
			return domain.NewComplaint{}, err
		}
		rec.ReceivedAt = t
	}
	return rec, nil
}

var errInvalidRow = errors.New("invalid row")

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func validateRecord(v *validator.Validate, rec domain.NewComplaint) error {
	err := v.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_without":
			msgs = append(msgs, "needs a description or an order id")
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", errInvalidRow, strings.Join(msgs, "; "))
}
