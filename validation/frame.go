package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

var (
	ErrEmptyFrame       = errors.New("frame is empty")
	ErrDuplicateColumns = errors.New("duplicate column names")
)

// CleanColumnName uppercases name and replaces spaces with underscores
func CleanColumnName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// ValidateDataFrame returns df with warehouse friendly column names.
// A frame without rows or columns, or whose cleaned names collide, is rejected.
func ValidateDataFrame(df *frame.Frame) (*frame.Frame, error) {
	if df == nil || df.Empty() {
		return nil, ErrEmptyFrame
	}

	cleaned := make([]string, df.Width())
	seen := make(map[string]string, df.Width())
	var dups []string
	for i, col := range df.Columns() {
		name := CleanColumnName(col)
		if prev, ok := seen[name]; ok {
			dups = append(dups, fmt.Sprintf("%q and %q", prev, col))
		}
		seen[name] = col
		cleaned[i] = name
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateColumns, strings.Join(dups, ", "))
	}
	return df.RenameColumns(cleaned)
}
