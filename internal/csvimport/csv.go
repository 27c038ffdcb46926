// Package csvimport reads bank CSV exports into loosely structured rows.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column names recognized in bank exports. Headers are matched case-insensitively.
const (
	ColDate        = "date"
	ColDescription = "description"
	ColMerchant    = "merchant"
	ColAmount      = "amount"
	ColCategory    = "category"
)

// ErrNoHeader is returned for an input without a header line.
var ErrNoHeader = errors.New("csv has no header row")

// RawRow is one CSV record keyed by lower-cased column name.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of a column, or "" when the column is absent.
func (r RawRow) Get(column string) string {
	return strings.TrimSpace(r.Fields[strings.ToLower(column)])
}

// Description prefers the description column and falls back to merchant.
func (r RawRow) Description() string {
	if v := r.Get(ColDescription); v != "" {
		return v
	}
	return r.Get(ColMerchant)
}

// NewRow builds a RawRow from column/value pairs, mostly for tests and
// programmatic imports.
func NewRow(line int, fields map[string]string) RawRow {
	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return RawRow{Line: line, Fields: normalized}
}

// Parse reads every record after the header. Short rows yield empty strings
// for the missing columns and extra trailing values are ignored. Line numbers
// count the header as line 1.
func Parse(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if isBlank(record) {
			continue
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(record) {
				fields[col] = strings.TrimSpace(record[i])
			} else {
				fields[col] = ""
			}
		}
		rows = append(rows, RawRow{Line: line, Fields: fields})
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
