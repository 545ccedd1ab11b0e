package storage

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Format is the file layout of an object holding a table
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

var Formats = []Format{FormatCSV, FormatParquet, FormatJSON}

// DetectFormat derives the format from the object name, ignoring a trailing .gz
func DetectFormat(name string) (Format, error) {
	lower := strings.TrimSuffix(strings.ToLower(name), ".gz")
	switch path.Ext(lower) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("cannot detect format of %q, expected one of %v", name, Formats)
}

// ParseFormat validates a format name given by the user
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q, expected one of %v", s, Formats)
}

// csvDelimiter is tab for .tsv objects and comma otherwise
func csvDelimiter(name string) rune {
	if path.Ext(strings.TrimSuffix(strings.ToLower(name), ".gz")) == ".tsv" {
		return '\t'
	}
	return ','
}

func isGzip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}

// decode returns a reader over the object content, gunzipping .gz objects
func decode(name string, data []byte) (io.Reader, error) {
	if !isGzip(name) {
		return bytes.NewReader(data), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip object %q: %w", name, err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing %q: %w", name, err)
	}
	return bytes.NewReader(plain), nil
}

// encode renders content through write, gzipping it for .gz objects
func encode(name string, write func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if !isGzip(name) {
		if err := write(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	zw := gzip.NewWriter(&buf)
	if err := write(zw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing %q: %w", name, err)
	}
	return buf.Bytes(), nil
}
