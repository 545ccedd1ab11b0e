package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// layouts accepted when parsing datetime text, tried in order
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Coerce converts v to the canonical Go type of dt:
// int64/int32/int16, float64/float32, string, bool or time.Time. nil stays nil.
func Coerce(v any, dt DType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok && dt != Object {
		return ParseValue(s, dt)
	}

	switch dt {
	case Int64:
		n, err := toInt64(v)
		return n, err
	case Int32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int32", n)
		}
		return int32(n), nil
	case Int16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("%d overflows int16", n)
		}
		return int16(n), nil
	case Float64:
		return toFloat64(v)
	case Float32:
		f, err := toFloat64(v)
		return float32(f), err
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to bool", v)
		}
		return b, nil
	case Datetime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to datetime", v)
		}
		return t, nil
	case Object:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return FormatValue(v, ""), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDType, dt)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
	return float64(i), nil
}

// ParseValue parses text into the canonical Go type of dt
func ParseValue(s string, dt DType) (any, error) {
	switch dt {
	case Int64, Int32, Int16:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, err
		}
		return Coerce(n, dt)
	case Float64:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case Float32:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		return float32(f), err
	case Bool:
		return parseBool(s)
	case Datetime:
		return parseTime(s)
	case Object:
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDType, dt)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool %q", s)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// inferText picks a dtype for a column of text cells; empty cells are ignored
func inferText(cells []string, null string) DType {
	candidates := []DType{Int64, Float64, Bool}
	seen := false
	for _, s := range cells {
		if s == null || s == "" {
			continue
		}
		seen = true
		kept := candidates[:0]
		for _, dt := range candidates {
			if _, err := ParseValue(s, dt); err == nil {
				kept = append(kept, dt)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return Object
		}
	}
	if !seen {
		return Object
	}
	return candidates[0]
}

// FormatValue renders a cell as text; nil becomes null
func FormatValue(v any, null string) string {
	switch x := v.(type) {
	case nil:
		return null
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprintf("%v", v)
}
