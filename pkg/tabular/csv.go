package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads RFC-4180-style data: double-quote escaping, embedded
// newlines inside quoted fields, lazy quotes for real-world exports. Blank
// rows are skipped; ragged rows are padded or truncated to the header width.
func ParseCSV(data []byte, maxRows int) (*Table, []Warning, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	// Variable field counts are handled here, not rejected by the reader.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrNoHeader
		}
		return nil, nil, fmt.Errorf("failed to read header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Columns: headers}
	var warnings []Warning
	rowNum := 0

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			warnings = append(warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}
		if isBlankRow(row) {
			continue
		}
		if len(table.Rows) >= maxRows {
			table.Truncated = true
			break
		}
		normalized, adjusted := normalizeRow(row, len(headers))
		if adjusted {
			warnings = append(warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d; adjusted to header width", len(row), len(headers)),
			})
		}
		table.Rows = append(table.Rows, normalized)
	}

	return table, warnings, nil
}

// SerializeCSV writes the table back out as canonical RFC-4180 text. Fields
// containing separators, quotes, or newlines come out quoted, so a
// parse/serialize cycle is lossless.
func SerializeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
