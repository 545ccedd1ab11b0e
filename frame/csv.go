package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// CSVOptions controls CSV parsing and rendering. The zero value reads and
// writes comma separated text with a header row.
type CSVOptions struct {
	Delimiter rune
	// NoHeader treats the first record as data. Columns then names the
	// columns, or they are numbered from 0.
	NoHeader bool
	Columns  []string
	// NullValue is the text used for missing values, "" by default
	NullValue string
	// DTypes overrides inference for the named columns
	DTypes map[string]DType
}

func (o CSVOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// ReadCSV parses CSV text into a Frame, inferring int64, float64 and bool
// columns and leaving everything else as object
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.delimiter()

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		if len(opts.Columns) > 0 {
			return NewWithTypes(opts.Columns, objectTypes(len(opts.Columns)), nil)
		}
		return nil, errors.New("no columns to parse from csv")
	}

	var columns []string
	switch {
	case !opts.NoHeader:
		columns = records[0]
		records = records[1:]
	case len(opts.Columns) > 0:
		columns = opts.Columns
	default:
		columns = make([]string, len(records[0]))
		for i := range columns {
			columns[i] = strconv.Itoa(i)
		}
	}
	if len(records) > 0 && len(columns) != len(records[0]) {
		return nil, fmt.Errorf("csv has %d fields but %d columns: %w", len(records[0]), len(columns), ErrRowLength)
	}

	dtypes := make([]DType, len(columns))
	cells := make([]string, len(records))
	for c, name := range columns {
		if dt, ok := opts.DTypes[name]; ok {
			dtypes[c] = dt
			continue
		}
		for r, rec := range records {
			cells[r] = rec[c]
		}
		dtypes[c] = inferText(cells, opts.NullValue)
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(columns))
		for c, cell := range rec {
			if cell == opts.NullValue || (cell == "" && dtypes[c] != Object) {
				continue
			}
			v, err := ParseValue(cell, dtypes[c])
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %q: %w", r+2, columns[c], err)
			}
			row[c] = v
		}
		rows[r] = row
	}

	return &Frame{columns: append([]string(nil), columns...), dtypes: dtypes, rows: rows}, nil
}

func objectTypes(n int) []DType {
	out := make([]DType, n)
	for i := range out {
		out[i] = Object
	}
	return out
}

// WriteCSV renders the frame as CSV. No index column is ever written.
func (f *Frame) WriteCSV(w io.Writer, opts CSVOptions) error {
	writer := csv.NewWriter(w)
	writer.Comma = opts.delimiter()

	if !opts.NoHeader {
		if err := writer.Write(f.columns); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	record := make([]string, len(f.columns))
	for _, row := range f.rows {
		for c, v := range row {
			record[c] = FormatValue(v, opts.NullValue)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
