// Package csvio converts between CSV text and the in-memory table model.
package csvio

import (
	"encoding/csv"
	"io"

	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/jwhan/csvlingo/pkg/errors"
)

// Parse reads a CSV document into a table. The first record is the header.
// Ragged rows are normalized to header width: short rows are padded with empty
// cells, long rows truncated. Hard decode failures return a ParseError.
func Parse(r io.Reader) (*domain.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // width normalized below

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewParseError("empty CSV input", 0, nil)
	}
	if err != nil {
		return nil, errors.NewParseError("failed to read CSV header", 1, err)
	}
	if len(headers) == 0 {
		return nil, errors.NewParseError("CSV header has no columns", 1, nil)
	}

	table := &domain.Table{
		Headers: headers,
		Rows:    make([]domain.Row, 0),
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewParseError("malformed CSV record", line, err)
		}
		table.Rows = append(table.Rows, normalizeWidth(record, len(headers)))
	}

	return table, nil
}

// Write serializes headers plus rows as CSV. Rows are normalized to header
// width so the output is always rectangular.
func Write(w io.Writer, table *domain.Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(table.Headers); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := writer.Write(normalizeWidth(row, len(table.Headers))); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func normalizeWidth(record []string, width int) domain.Row {
	row := make(domain.Row, width)
	copy(row, record)
	return row
}
