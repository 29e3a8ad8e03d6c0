package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// jsonRecord accepts "employee" as an alias of "name".
type jsonRecord struct {
	RawRecord
	Employee string `json:"employee,omitempty"`
}

// JSONParser parses raw records from a JSON array of objects.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed records.
func (p *JSONParser) Parse(r io.Reader) ([]RawRecord, error) {
	var raw []jsonRecord

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	records := make([]RawRecord, len(raw))
	for i, jr := range raw {
		rec := jr.RawRecord
		if rec.Name == "" {
			rec.Name = jr.Employee
		}
		// Set line numbers (array index + 1, 1-indexed)
		rec.LineNum = i + 1
		records[i] = rec
	}

	return records, nil
}
