package frame

import (
	"bufio"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonNumbers keeps numbers as json.Number so integers survive a round trip
var jsonNumbers = jsoniter.Config{
	EscapeHTML:             true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// number is satisfied by the json.Number values produced with UseNumber
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

// WriteJSON renders the frame as JSON lines, one object per row with keys in
// column order. Datetimes are written as RFC 3339 strings.
func (f *Frame) WriteJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	stream := jsoniter.NewStream(json, bw, 4096)
	for _, row := range f.rows {
		stream.WriteObjectStart()
		for c, v := range row {
			if c > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(f.columns[c])
			if t, ok := v.(time.Time); ok {
				v = t.Format(time.RFC3339Nano)
			}
			stream.WriteVal(v)
		}
		stream.WriteObjectEnd()
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return fmt.Errorf("failed to encode json record: %w", stream.Error)
		}
	}
	if err := stream.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}

// jsonRecord is one object with its keys in source order
type jsonRecord struct {
	keys   []string
	values map[string]any
}

func readRecord(iter *jsoniter.Iterator) (jsonRecord, bool) {
	rec := jsonRecord{values: map[string]any{}}
	ok := iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		if _, seen := rec.values[key]; !seen {
			rec.keys = append(rec.keys, key)
		}
		rec.values[key] = it.Read()
		return it.Error == nil || it.Error == io.EOF
	})
	return rec, ok
}

// ReadJSON parses JSON lines or a JSON array of objects. Columns are ordered
// by first appearance, following key order within each object.
func ReadJSON(r io.Reader) (*Frame, error) {
	iter := jsoniter.Parse(jsonNumbers, bufio.NewReader(r), 4096)

	var records []jsonRecord
	switch iter.WhatIsNext() {
	case jsoniter.ArrayValue:
		complete := iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			if it.WhatIsNext() != jsoniter.ObjectValue {
				it.ReportError("ReadJSON", fmt.Sprintf("array element %d is not an object", len(records)+1))
				return false
			}
			rec, ok := readRecord(it)
			if ok {
				records = append(records, rec)
			}
			return ok
		})
		if !complete || (iter.Error != nil && iter.Error != io.EOF) {
			err := iter.Error
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to decode json array: %w", err)
		}
	case jsoniter.ObjectValue:
		for iter.WhatIsNext() == jsoniter.ObjectValue {
			rec, ok := readRecord(iter)
			if !ok || (iter.Error != nil && iter.Error != io.EOF) {
				return nil, fmt.Errorf("failed to decode json record %d: %w", len(records)+1, iter.Error)
			}
			records = append(records, rec)
		}
		if iter.Error == nil {
			return nil, fmt.Errorf("json record %d is not an object", len(records)+1)
		}
		if iter.Error != io.EOF {
			return nil, fmt.Errorf("failed to decode json record %d: %w", len(records)+1, iter.Error)
		}
	default:
		if iter.Error != nil && iter.Error != io.EOF {
			return nil, fmt.Errorf("failed to decode json: %w", iter.Error)
		}
		if iter.Error == io.EOF {
			return nil, fmt.Errorf("no records to parse from json")
		}
		return nil, fmt.Errorf("expected json objects or an array of objects")
	}

	var columns []string
	index := map[string]int{}
	for _, rec := range records {
		for _, k := range rec.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(columns))
		for k, v := range rec.values {
			row[index[k]] = jsonValue(v)
		}
		rows[r] = row
	}
	return New(columns, rows)
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string:
		return x
	case number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return fmt.Sprint(x)
	case float64:
		return x
	}
	raw, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return raw
}
