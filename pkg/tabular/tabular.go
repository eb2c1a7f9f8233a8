// Package tabular reads uploaded spreadsheet files (CSV or XLSX) into a
// uniform in-memory table: a header row plus positional data rows, every row
// padded or truncated to the header width.
package tabular

import (
	"errors"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNoHeader          = errors.New("empty file: no header row found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

type Table struct {
	Columns []string
	Rows    [][]string
	// Truncated is set when the source held more data rows than maxRows.
	Truncated bool
}

type Warning struct {
	Row     int
	Message string
}

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatUnknown Format = "unknown"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DetectFormat sniffs file content. Anything text-like is treated as CSV so
// exports with unusual MIME metadata still import.
func DetectFormat(data []byte) Format {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is(xlsxMIME):
			return FormatXLSX
		case m.Is("text/csv"), m.Is("text/plain"), m.Is("text/tab-separated-values"):
			return FormatCSV
		}
	}
	return FormatUnknown
}

// Parse sniffs the format and dispatches to the matching reader. maxRows
// caps the number of data rows kept; the header row does not count.
func Parse(data []byte, maxRows int) (*Table, []Warning, error) {
	switch DetectFormat(data) {
	case FormatXLSX:
		return ParseXLSX(data, maxRows)
	case FormatCSV:
		return ParseCSV(data, maxRows)
	default:
		return nil, nil, ErrUnsupportedFormat
	}
}

// normalizeRow pads or truncates row to width.
func normalizeRow(row []string, width int) ([]string, bool) {
	if len(row) == width {
		return row, false
	}
	out := make([]string, width)
	copy(out, row)
	return out, true
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
