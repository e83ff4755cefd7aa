// Package targets reads the batch input file listing organizations to search.
package targets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// columnNames are accepted headers for the target column, in priority order.
var columnNames = []string{"companyname", "company", "target", "name"}

// ErrNoColumn is returned when no header names a target column.
var ErrNoColumn = errors.New("no CompanyName column")

// Read returns the value of the target column for every data row, in file
// order. Values are trimmed; blank rows are kept as empty strings so callers
// can report them.
func Read(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty targets file: %w", ErrNoColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for _, want := range columnNames {
		for i, name := range header {
			name = strings.TrimPrefix(name, "\ufeff")
			if strings.EqualFold(strings.TrimSpace(name), want) {
				col = i
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("header %v: %w", header, ErrNoColumn)
	}

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col < len(rec) {
			out = append(out, strings.TrimSpace(rec[col]))
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}
