package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Table is a parsed upload: the header row plus the data rows, each
// padded or truncated to the header width. Rows are ephemeral; they are
// discarded once mapped.
type Table struct {
	Headers []string
	Rows    [][]string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseTable parses CSV bytes leniently: UTF-8 BOM stripped, variable
// field counts tolerated, lazy quotes accepted, fully empty rows
// dropped. A parse failure is terminal for the whole upload; there is no
// partial recovery.
func ParseTable(data []byte) (Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, fmt.Errorf("importer: empty file: no header row found")
		}
		return Table{}, fmt.Errorf("importer: read header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	width := len(headers)
	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("importer: read row: %w", err)
		}

		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		case len(row) > width:
			row = row[:width]
		}

		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, row)
	}

	return Table{Headers: headers, Rows: rows}, nil
}

// BuildRow projects one raw row through the mapping, keeping only mapped
// columns.
func BuildRow(headers []string, cells []string, mapping Mapping) Row {
	row := make(Row, len(mapping.Columns))
	for i, header := range headers {
		if i >= len(cells) {
			break
		}
		field, ok := mapping.Columns[header]
		if !ok {
			continue
		}
		row[field] = strings.TrimSpace(cells[i])
	}
	return row
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
