// Package parsers provides parsers for reading raw fact records from export files.
package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ersonp/dimload/internal/domain/entities"
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// RawRecord is one row of a task log or allocation export before reconciliation.
// Columns that don't apply to a fact kind are ignored when it is converted.
type RawRecord struct {
	Client  string `csv:"client" json:"client"`
	Project string `csv:"project" json:"project"`
	Name    string `csv:"name" json:"name"`
	Task    string `csv:"task" json:"task"`
	Role    string `csv:"role,omitempty" json:"role,omitempty"`

	// Task log columns
	Date       *Date            `csv:"date,omitempty" json:"date,omitempty"`
	Hours      *decimal.Decimal `csv:"hours,omitempty" json:"hours,omitempty"` // Pointer to distinguish 0 from unset
	Note       string           `csv:"note,omitempty" json:"note,omitempty"`
	IsBillable *bool            `csv:"is_billable,omitempty" json:"is_billable,omitempty"`

	// Allocation columns
	StartDate      *Date            `csv:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate        *Date            `csv:"end_date,omitempty" json:"end_date,omitempty"`
	EstimatedHours *decimal.Decimal `csv:"estimated_hours,omitempty" json:"estimated_hours,omitempty"`

	LineNum int `csv:"-" json:"-"` // Line number in source file (set by parser)
}

// Date is a calendar date in DateLayout.
type Date time.Time

// UnmarshalText parses a DateLayout date.
func (d *Date) UnmarshalText(text []byte) error {
	t, err := time.Parse(DateLayout, strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", string(text))
	}
	*d = Date(t)
	return nil
}

// MarshalText formats the date in DateLayout.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(time.Time(d).Format(DateLayout)), nil
}

// Time returns the date as a time.Time, or the zero time for a nil date.
func (d *Date) Time() time.Time {
	if d == nil {
		return time.Time{}
	}
	return time.Time(*d)
}

// FactRecord converts the raw row into a fact record of the given kind.
// Missing numeric cells become zero and a missing billable flag is false.
func (r RawRecord) FactRecord(kind entities.FactKind) entities.FactRecord {
	rec := entities.FactRecord{
		Line: r.LineNum,
		Keys: entities.DimensionKeys{
			Client:   r.Client,
			Project:  r.Project,
			Employee: r.Name,
			Task:     r.Task,
		},
		Role: r.Role,
	}

	switch kind {
	case entities.FactTaskLog:
		rec.Measures = &entities.TaskLogMeasures{
			Date:       r.Date.Time(),
			Hours:      valueOrZero(r.Hours),
			Note:       strings.TrimSpace(r.Note),
			IsBillable: r.IsBillable != nil && *r.IsBillable,
		}
	case entities.FactProjectAllocation:
		rec.Measures = &entities.AllocationMeasures{
			StartDate:      r.StartDate.Time(),
			EndDate:        r.EndDate.Time(),
			EstimatedHours: valueOrZero(r.EstimatedHours),
		}
	}
	return rec
}

// FactRecords converts every raw row into a fact record of the given kind.
func FactRecords(kind entities.FactKind, raws []RawRecord) []entities.FactRecord {
	records := make([]entities.FactRecord, len(raws))
	for i := range raws {
		records[i] = raws[i].FactRecord(kind)
	}
	return records
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Parser defines the interface for parsing raw records from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawRecord, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
