// Package frame holds a small column-typed table used to move data between
// object storage files and warehouse tables.
package frame

import (
	"errors"
	"fmt"
	"time"
)

// DType is the column type of a Frame. Names follow the dataframe dtypes
// users already see in notebooks.
type DType string

const (
	Int64    DType = "int64"
	Int32    DType = "int32"
	Int16    DType = "int16"
	Float64  DType = "float64"
	Float32  DType = "float32"
	Object   DType = "object"
	Bool     DType = "bool"
	Datetime DType = "datetime64[ns]"
)

var (
	ErrRowLength     = errors.New("row length does not match column count")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownDType  = errors.New("unknown dtype")
)

// Frame is an ordered set of named, typed columns stored row-major
type Frame struct {
	columns []string
	dtypes  []DType
	rows    [][]any
}

// New builds a Frame inferring each column's dtype from its values
func New(columns []string, rows [][]any) (*Frame, error) {
	if err := checkRows(columns, rows); err != nil {
		return nil, err
	}
	dtypes := make([]DType, len(columns))
	values := make([]any, len(rows))
	for c := range columns {
		for r, row := range rows {
			values[r] = row[c]
		}
		dtypes[c] = InferDType(values)
	}
	return NewWithTypes(columns, dtypes, rows)
}

// NewWithTypes builds a Frame with explicit dtypes, coercing every value
func NewWithTypes(columns []string, dtypes []DType, rows [][]any) (*Frame, error) {
	if len(dtypes) != len(columns) {
		return nil, fmt.Errorf("got %d dtypes for %d columns: %w", len(dtypes), len(columns), ErrRowLength)
	}
	if err := checkRows(columns, rows); err != nil {
		return nil, err
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		converted := make([]any, len(row))
		for c, v := range row {
			cv, err := Coerce(v, dtypes[c])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, columns[c], err)
			}
			converted[c] = cv
		}
		out[r] = converted
	}

	return &Frame{
		columns: append([]string(nil), columns...),
		dtypes:  append([]DType(nil), dtypes...),
		rows:    out,
	}, nil
}

func checkRows(columns []string, rows [][]any) error {
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d values for %d columns: %w", i, len(row), len(columns), ErrRowLength)
		}
	}
	return nil
}

func (f *Frame) Len() int   { return len(f.rows) }
func (f *Frame) Width() int { return len(f.columns) }

// Empty reports whether the frame has no rows or no columns
func (f *Frame) Empty() bool { return len(f.rows) == 0 || len(f.columns) == 0 }

func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }
func (f *Frame) DTypes() []DType   { return append([]DType(nil), f.dtypes...) }

// DType returns the dtype of the named column
func (f *Frame) DType(name string) (DType, bool) {
	i := f.index(name)
	if i < 0 {
		return "", false
	}
	return f.dtypes[i], true
}

func (f *Frame) index(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Row returns a copy of row i
func (f *Frame) Row(i int) []any {
	return append([]any(nil), f.rows[i]...)
}

// Rows returns every row as a positional tuple in column order
func (f *Frame) Rows() [][]any {
	out := make([][]any, len(f.rows))
	for i := range f.rows {
		out[i] = f.Row(i)
	}
	return out
}

// Column returns the values of the named column
func (f *Frame) Column(name string) ([]any, error) {
	i := f.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	out := make([]any, len(f.rows))
	for r, row := range f.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Value returns a single cell
func (f *Frame) Value(row int, column string) (any, error) {
	i := f.index(column)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	if row < 0 || row >= len(f.rows) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, len(f.rows))
	}
	return f.rows[row][i], nil
}

// Records returns the rows keyed by column name
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for r, row := range f.rows {
		rec := make(map[string]any, len(f.columns))
		for c, name := range f.columns {
			rec[name] = row[c]
		}
		out[r] = rec
	}
	return out
}

// Slice returns rows [start, end) sharing the underlying values
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > len(f.rows) {
		end = len(f.rows)
	}
	if start > end {
		start = end
	}
	return &Frame{columns: f.columns, dtypes: f.dtypes, rows: f.rows[start:end]}
}

// Chunks splits the frame into consecutive frames of at most size rows
func (f *Frame) Chunks(size int) []*Frame {
	if size <= 0 {
		size = 10000
	}
	var out []*Frame
	for start := 0; start < len(f.rows); start += size {
		out = append(out, f.Slice(start, start+size))
	}
	return out
}

// RenameColumns returns a frame sharing the data under new column names
func (f *Frame) RenameColumns(names []string) (*Frame, error) {
	if len(names) != len(f.columns) {
		return nil, fmt.Errorf("got %d names for %d columns: %w", len(names), len(f.columns), ErrRowLength)
	}
	return &Frame{columns: append([]string(nil), names...), dtypes: f.dtypes, rows: f.rows}, nil
}

// InferDType picks the narrowest dtype holding every non-nil value.
// Integers of different widths widen to int64, integers mixed with floats to
// float64, anything else mixed to object.
func InferDType(values []any) DType {
	var out DType
	for _, v := range values {
		if v == nil {
			continue
		}
		dt := dtypeOf(v)
		switch {
		case out == "":
			out = dt
		case out == dt:
		case isInt(out) && isInt(dt):
			out = Int64
		case isNumeric(out) && isNumeric(dt):
			out = Float64
		default:
			return Object
		}
	}
	if out == "" {
		return Object
	}
	return out
}

func isInt(dt DType) bool     { return dt == Int64 || dt == Int32 || dt == Int16 }
func isNumeric(dt DType) bool { return isInt(dt) || dt == Float64 || dt == Float32 }

func dtypeOf(v any) DType {
	switch v.(type) {
	case int16, int8, uint8:
		return Int16
	case int32, uint16:
		return Int32
	case int, int64, uint32, uint, uint64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	case time.Time:
		return Datetime
	default:
		return Object
	}
}

// ParseDType accepts the dtype names written by Frame and common aliases
func ParseDType(s string) (DType, error) {
	switch s {
	case "int64", "int", "integer":
		return Int64, nil
	case "int32":
		return Int32, nil
	case "int16":
		return Int16, nil
	case "float64", "float", "double":
		return Float64, nil
	case "float32":
		return Float32, nil
	case "object", "string", "str":
		return Object, nil
	case "bool", "boolean":
		return Bool, nil
	case "datetime64[ns]", "datetime", "timestamp":
		return Datetime, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDType, s)
}
