package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// layoutKey is the parquet key/value metadata entry recording column order and
// dtypes, since parquet groups sort their fields by name
const layoutKey = "clouddatamanager.frame"

var ErrUnsupportedSchema = errors.New("unsupported parquet schema")

type parquetLayout struct {
	Columns []string `json:"columns"`
	DTypes  []DType  `json:"dtypes"`
}

// ParquetOptions controls parquet output
type ParquetOptions struct {
	// Compression is one of snappy (default), zstd, gzip, lz4 or none
	Compression string
}

func compressionCodec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("unsupported parquet compression %q", name)
}

func parquetNode(dt DType) (parquet.Node, error) {
	var leaf parquet.Node
	switch dt {
	case Int64:
		leaf = parquet.Int(64)
	case Int32:
		leaf = parquet.Int(32)
	case Int16:
		leaf = parquet.Int(16)
	case Float64:
		leaf = parquet.Leaf(parquet.DoubleType)
	case Float32:
		leaf = parquet.Leaf(parquet.FloatType)
	case Bool:
		leaf = parquet.Leaf(parquet.BooleanType)
	case Datetime:
		leaf = parquet.Timestamp(parquet.Nanosecond)
	case Object:
		leaf = parquet.String()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDType, dt)
	}
	return parquet.Optional(leaf), nil
}

// Schema returns the flat parquet schema for the frame's columns
func (f *Frame) Schema() (*parquet.Schema, error) {
	group := parquet.Group{}
	for i, name := range f.columns {
		if _, dup := group[name]; dup {
			return nil, fmt.Errorf("duplicate column %q: %w", name, ErrUnsupportedSchema)
		}
		node, err := parquetNode(f.dtypes[i])
		if err != nil {
			return nil, err
		}
		group[name] = node
	}
	return parquet.NewSchema("frame", group), nil
}

// WriteParquet encodes the frame as a single parquet file
func (f *Frame) WriteParquet(w io.Writer, opts ParquetOptions) error {
	schema, err := f.Schema()
	if err != nil {
		return err
	}
	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		return err
	}
	layout, err := json.MarshalToString(parquetLayout{Columns: f.columns, DTypes: f.dtypes})
	if err != nil {
		return fmt.Errorf("failed to encode frame layout: %w", err)
	}

	leafIndex := make([]int, len(f.columns))
	for i, name := range f.columns {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return fmt.Errorf("column %q missing from schema: %w", name, ErrUnsupportedSchema)
		}
		leafIndex[i] = leaf.ColumnIndex
	}

	writer := parquet.NewWriter(w, schema,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(layoutKey, layout),
	)

	const batch = 1024
	buf := make([]parquet.Row, 0, batch)
	for _, row := range f.rows {
		prow := make(parquet.Row, len(f.columns))
		for c, v := range row {
			prow[leafIndex[c]] = parquetValue(v, f.dtypes[c]).Level(0, definitionLevel(v), leafIndex[c])
		}
		buf = append(buf, prow)
		if len(buf) == batch {
			if _, err := writer.WriteRows(buf); err != nil {
				return fmt.Errorf("failed to write parquet rows: %w", err)
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := writer.WriteRows(buf); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func definitionLevel(v any) int {
	if v == nil {
		return 0
	}
	return 1
}

func parquetValue(v any, dt DType) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}
	switch dt {
	case Int64:
		return parquet.Int64Value(v.(int64))
	case Int32:
		return parquet.Int32Value(v.(int32))
	case Int16:
		return parquet.Int32Value(int32(v.(int16)))
	case Float64:
		return parquet.DoubleValue(v.(float64))
	case Float32:
		return parquet.FloatValue(v.(float32))
	case Bool:
		return parquet.BooleanValue(v.(bool))
	case Datetime:
		return parquet.Int64Value(v.(time.Time).UnixNano())
	default:
		return parquet.ByteArrayValue([]byte(FormatValue(v, "")))
	}
}

// ReadParquet decodes a parquet file with a flat schema. Files written by
// WriteParquet keep their column order and dtypes; other files get columns in
// schema order with dtypes derived from the physical types.
func ReadParquet(data []byte) (*Frame, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	schema := file.Schema()

	var layout parquetLayout
	if raw, ok := file.Lookup(layoutKey); ok {
		if err := json.UnmarshalFromString(raw, &layout); err != nil {
			return nil, fmt.Errorf("failed to decode frame layout: %w", err)
		}
	} else {
		layout, err = layoutFromSchema(schema)
		if err != nil {
			return nil, err
		}
	}
	if len(layout.Columns) != len(layout.DTypes) {
		return nil, fmt.Errorf("layout has %d columns and %d dtypes: %w", len(layout.Columns), len(layout.DTypes), ErrUnsupportedSchema)
	}

	// leaf column index -> frame column position
	position := make(map[int]int, len(layout.Columns))
	for i, name := range layout.Columns {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("column %q missing from schema: %w", name, ErrUnsupportedSchema)
		}
		position[leaf.ColumnIndex] = i
	}

	out := &Frame{columns: layout.Columns, dtypes: layout.DTypes}
	buf := make([]parquet.Row, 256)
	for _, group := range file.RowGroups() {
		rows := group.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, prow := range buf[:n] {
				row := make([]any, len(layout.Columns))
				for _, v := range prow {
					pos, ok := position[v.Column()]
					if !ok || v.IsNull() {
						continue
					}
					row[pos] = fromParquetValue(v, layout.DTypes[pos])
				}
				out.rows = append(out.rows, row)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read parquet rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to close parquet rows: %w", err)
		}
	}
	return out, nil
}

func layoutFromSchema(schema *parquet.Schema) (parquetLayout, error) {
	var layout parquetLayout
	for _, field := range schema.Fields() {
		if !field.Leaf() {
			return layout, fmt.Errorf("nested field %q: %w", field.Name(), ErrUnsupportedSchema)
		}
		var dt DType
		switch field.Type().Kind() {
		case parquet.Boolean:
			dt = Bool
		case parquet.Int32:
			dt = Int32
		case parquet.Int64:
			dt = Int64
		case parquet.Float:
			dt = Float32
		case parquet.Double:
			dt = Float64
		default:
			dt = Object
		}
		layout.Columns = append(layout.Columns, field.Name())
		layout.DTypes = append(layout.DTypes, dt)
	}
	return layout, nil
}

func fromParquetValue(v parquet.Value, dt DType) any {
	switch dt {
	case Int64:
		return v.Int64()
	case Int32:
		return v.Int32()
	case Int16:
		return int16(v.Int32())
	case Float64:
		return v.Double()
	case Float32:
		return v.Float()
	case Bool:
		return v.Boolean()
	case Datetime:
		return time.Unix(0, v.Int64()).UTC()
	default:
		if v.Kind() == parquet.ByteArray || v.Kind() == parquet.FixedLenByteArray {
			return string(v.ByteArray())
		}
		return v.String()
	}
}
