package tabular

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first sheet of a workbook into a Table under the same
// contract as ParseCSV. Trailing empty cells excelize omits are padded back.
func ParseXLSX(data []byte, maxRows int) (*Table, []Warning, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, nil, ErrNoHeader
	}

	headers := rows[0]
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Columns: headers}
	var warnings []Warning

	for rowNum, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if len(table.Rows) >= maxRows {
			table.Truncated = true
			break
		}
		normalized, adjusted := normalizeRow(row, len(headers))
		// Spreadsheets routinely drop trailing blanks, only over-wide rows
		// are worth telling the caller about.
		if adjusted && len(row) > len(headers) {
			warnings = append(warnings, Warning{
				Row:     rowNum + 1,
				Message: fmt.Sprintf("row has %d columns, expected %d; adjusted to header width", len(row), len(headers)),
			})
		}
		table.Rows = append(table.Rows, normalized)
	}

	return table, warnings, nil
}
