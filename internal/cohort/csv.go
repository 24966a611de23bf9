package cohort

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads a base table from a CSV file on disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &InputError{Path: path, Reason: "base table not found", Err: err}
		}
		return nil, &InputError{Path: path, Reason: "open base table", Err: err}
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		var ie *InputError
		if errors.As(err, &ie) && ie.Path == "" {
			ie.Path = path
		}
		return nil, err
	}
	return t, nil
}

// ReadCSV decodes a base table. The header must contain every required
// column; other columns are kept as passthrough values. A table with no
// rows is an InputError.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &InputError{Reason: "base table is empty"}
		}
		return nil, &InputError{Reason: "read header", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// Spreadsheet exports sometimes lead with a byte order mark.
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	if missing := MissingColumns(header); len(missing) > 0 {
		return nil, &SchemaError{Columns: missing, Reason: "base table missing required columns"}
	}

	t := &Table{Columns: header}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &InputError{Reason: fmt.Sprintf("read line %d", line), Err: err}
		}
		var e Entity
		for i, col := range header {
			if i >= len(rec) {
				break
			}
			if col == ColEntityID {
				e.ID = strings.TrimSpace(rec[i])
				continue
			}
			if err := e.Set(col, rec[i]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		t.Entities = append(t.Entities, e)
	}

	if len(t.Entities) == 0 {
		return nil, &InputError{Reason: "base table has no rows"}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteCSV encodes t with its header, writing values in column order.
func WriteCSV(w io.Writer, t *Table) error {
	return WriteCSVWith(w, t.Columns, len(t.Entities), func(i int, col string) string {
		return t.Entities[i].Get(col)
	})
}

// WriteCSVWith writes n rows under header, asking value for each cell.
// It is shared by the snapshot and report writers.
func WriteCSVWith(w io.Writer, header []string, n int, value func(row int, col string) string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(header))
	for i := 0; i < n; i++ {
		for j, col := range header {
			rec[j] = value(i, col)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
