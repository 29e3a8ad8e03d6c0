package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
)

// requiredColumns are the natural-key columns every export carries.
var requiredColumns = []string{"client", "project", "name", "task"}

// columnAliases maps export header names to RawRecord columns.
var columnAliases = map[string]string{
	"employee": "name",
	"billable": "is_billable",
}

// CSVParser parses raw records from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed records.
// Header names are matched case-insensitively; spaces become underscores.
// Expected columns: client, project, name (or employee), task, then the
// measure columns of the export (date, hours, note, is_billable or role,
// start_date, end_date, estimated_hours).
func (p *CSVParser) Parse(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return nil, fmt.Errorf("creating CSV decoder: %w", err)
	}

	return p.readRecords(reader, dec)
}

// readHeader reads the header row and normalizes column names.
func (p *CSVParser) readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("reading CSV header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for i, col := range header {
		name := normalizeColumn(col)
		if seen[name] {
			return nil, fmt.Errorf("duplicate column: %s", name)
		}
		seen[name] = true
		header[i] = name
	}

	for _, col := range requiredColumns {
		if !seen[col] {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return header, nil
}

// readRecords decodes all data rows.
func (p *CSVParser) readRecords(reader *csv.Reader, dec *csvutil.Decoder) ([]RawRecord, error) {
	var records []RawRecord

	for {
		var rec RawRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("parsing CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.LineNum = line
		records = append(records, rec)
	}

	return records, nil
}

// normalizeColumn lowercases a header name and resolves aliases.
func normalizeColumn(col string) string {
	name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	name = strings.ReplaceAll(name, " ", "_")
	if alias, ok := columnAliases[name]; ok {
		return alias
	}
	return name
}
