package validation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

// mock warehouse for testing
type MockWarehouse struct {
	counts map[string]int64
	failOn string //table name to fail on
}

func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{counts: make(map[string]int64)}
}

func (m *MockWarehouse) TableExists(ctx context.Context, table string) (bool, error) {
	if table == m.failOn {
		return false, errors.New("mock error for table " + table)
	}
	_, ok := m.counts[table]
	return ok, nil
}

func (m *MockWarehouse) CountRows(ctx context.Context, table string) (int64, error) {
	if table == m.failOn {
		return 0, errors.New("mock error for table " + table)
	}
	n, ok := m.counts[table]
	if !ok {
		return 0, errors.New("table does not exist " + table)
	}
	return n, nil
}

func TestPreLoad(t *testing.T) {
	w := NewMockWarehouse()
	w.counts["SALES"] = 10
	v := NewLoadValidator(w)
	ctx := context.Background()

	result := v.PreLoad(ctx, "SALES")
	if !result.IsValid || result.RowCount != 10 {
		t.Errorf("Expected valid result with 10 rows, got %+v", result)
	}

	result = v.PreLoad(ctx, "NEW_TABLE")
	if !result.IsValid || result.RowCount != 0 {
		t.Errorf("Expected missing table to count as empty, got %+v", result)
	}

	w.failOn = "SALES"
	result = v.PreLoad(ctx, "SALES")
	if result.IsValid || result.ErrorMessage == "" {
		t.Errorf("Expected failed validation, got %+v", result)
	}
}

func TestVerifyLoad(t *testing.T) {
	w := NewMockWarehouse()
	w.counts["SALES"] = 15
	v := NewLoadValidator(w)

	tests := []struct {
		name     string
		table    string
		expected int64
		valid    bool
		contains string
	}{
		{"matching count", "SALES", 15, true, ""},
		{"mismatch", "SALES", 20, false, "Row count mismatch"},
		{"missing table", "OTHER", 1, false, "Failed to count rows"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := v.VerifyLoad(context.Background(), tc.table, tc.expected)
			if result.IsValid != tc.valid {
				t.Errorf("Expected valid=%v, got %+v", tc.valid, result)
			}
			if !strings.Contains(result.ErrorMessage, tc.contains) {
				t.Errorf("Expected error containing %q, got %q", tc.contains, result.ErrorMessage)
			}
			if result.ExpectedRows != tc.expected {
				t.Errorf("Expected ExpectedRows %d, got %d", tc.expected, result.ExpectedRows)
			}
		})
	}
}

func TestGenerateValidationSummary(t *testing.T) {
	startTime := time.Now().Add(-time.Second)
	results := []ValidationResult{
		{TableName: "A", IsValid: true, RowCount: 100},
		{TableName: "B", IsValid: true, RowCount: 50},
		{TableName: "C", IsValid: false, RowCount: 3, ErrorMessage: "Row count mismatch"},
	}

	summary := GenerateValidationSummary(results, startTime)
	if summary.TotalTables != 3 || summary.ValidTables != 2 || summary.InvalidTables != 1 {
		t.Errorf("unexpected table counts %+v", summary)
	}
	if summary.TotalRows != 153 {
		t.Errorf("Expected 153 total rows, got %d", summary.TotalRows)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "Table C") {
		t.Errorf("unexpected errors %v", summary.Errors)
	}
	if summary.ValidationTime < time.Second {
		t.Errorf("Expected validation time of at least 1s, got %v", summary.ValidationTime)
	}

	var buf bytes.Buffer
	summary.Print(&buf, "Post-Load")
	out := buf.String()
	if !strings.Contains(out, "Post-Load Validation Summary") || !strings.Contains(out, "- Table C") {
		t.Errorf("unexpected summary output:\n%s", out)
	}
}

func TestValidateDataFrame(t *testing.T) {
	df, err := frame.New([]string{"order id", "Amount"}, [][]any{{1, 2.5}})
	if err != nil {
		t.Fatal(err)
	}

	cleaned, err := ValidateDataFrame(df)
	if err != nil {
		t.Fatalf("ValidateDataFrame failed: %v", err)
	}
	cols := cleaned.Columns()
	if cols[0] != "ORDER_ID" || cols[1] != "AMOUNT" {
		t.Errorf("unexpected cleaned columns %v", cols)
	}
	if df.Columns()[0] != "order id" {
		t.Errorf("input frame must not be modified")
	}
}

func TestValidateDataFrameErrors(t *testing.T) {
	empty, _ := frame.New([]string{"A"}, nil)
	dup, _ := frame.New([]string{"order id", "ORDER_ID"}, [][]any{{1, 2}})

	tests := []struct {
		name string
		df   *frame.Frame
		want error
	}{
		{"nil frame", nil, ErrEmptyFrame},
		{"no rows", empty, ErrEmptyFrame},
		{"duplicate after cleaning", dup, ErrDuplicateColumns},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateDataFrame(tc.df); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCleanColumnName(t *testing.T) {
	tests := map[string]string{
		"name":         "NAME",
		" first name ": "FIRST_NAME",
		"a b c":        "A_B_C",
		"ALREADY_OK":   "ALREADY_OK",
	}
	for in, want := range tests {
		if got := CleanColumnName(in); got != want {
			t.Errorf("CleanColumnName(%q) = %q, want %q", in, got, want)
		}
	}
}
