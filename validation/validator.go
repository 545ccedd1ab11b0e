// Package validation checks frames before they are loaded and verifies row
// counts after.
package validation

import (
	"context"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/database"
)

// Represents the result of the validation check
type ValidationResult struct {
	TableName    string
	IsValid      bool
	ErrorMessage string
	RowCount     int64
	ExpectedRows int64
	TimeStamp    time.Time
}

// Counter is the part of the warehouse the validator needs
type Counter interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

var _ Counter = (database.Warehouse)(nil)

// LoadValidator compares table row counts before and after a load
type LoadValidator struct {
	warehouse Counter
}

func NewLoadValidator(w Counter) *LoadValidator {
	return &LoadValidator{warehouse: w}
}

// PreLoad records the rows already in table; a missing table counts as empty
func (v *LoadValidator) PreLoad(ctx context.Context, table string) ValidationResult {
	result := ValidationResult{TableName: table, TimeStamp: time.Now()}

	exists, err := v.warehouse.TableExists(ctx, table)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("Failed to look up table %s: %v", table, err)
		return result
	}
	if exists {
		if result.RowCount, err = v.warehouse.CountRows(ctx, table); err != nil {
			result.ErrorMessage = fmt.Sprintf("Failed to count rows of %s: %v", table, err)
			return result
		}
	}
	result.IsValid = true
	klog.V(2).InfoS("Pre-load validation", "table", table, "rows", result.RowCount, "exists", exists)
	return result
}

// VerifyLoad checks that table holds exactly expectedRows rows
func (v *LoadValidator) VerifyLoad(ctx context.Context, table string, expectedRows int64) ValidationResult {
	result := ValidationResult{TableName: table, ExpectedRows: expectedRows, TimeStamp: time.Now()}

	count, err := v.warehouse.CountRows(ctx, table)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("Failed to count rows of %s: %v", table, err)
		return result
	}
	result.RowCount = count

	if count != expectedRows {
		result.ErrorMessage = fmt.Sprintf("Row count mismatch, expected: %d, got: %d", expectedRows, count)
		klog.InfoS("Post-load validation failed", "table", table, "expected", expectedRows, "rows", count)
		return result
	}
	result.IsValid = true
	klog.V(1).InfoS("Post-load validation passed", "table", table, "rows", count)
	return result
}

// struct for validation result summary
type ValidationSummary struct {
	TotalTables    int
	ValidTables    int
	InvalidTables  int
	TotalRows      int64
	ValidationTime time.Duration
	Errors         []string
}

// creating a summary of the validation result
func GenerateValidationSummary(results []ValidationResult, startTime time.Time) ValidationSummary {
	summary := ValidationSummary{
		TotalTables:    len(results),
		ValidationTime: time.Since(startTime),
		Errors:         make([]string, 0),
	}

	for _, result := range results {
		summary.TotalRows += result.RowCount

		if result.IsValid {
			summary.ValidTables++
		} else {
			summary.InvalidTables++
			summary.Errors = append(summary.Errors, fmt.Sprintf("Table %s: %s", result.TableName, result.ErrorMessage))
		}
	}
	return summary
}

// Print writes the formatted summary
func (s ValidationSummary) Print(w io.Writer, phase string) {
	fmt.Fprintf(w, "\n== %s Validation Summary ==\n", phase)
	fmt.Fprintf(w, "Total Tables: %d\n", s.TotalTables)
	fmt.Fprintf(w, "Valid Tables: %d\n", s.ValidTables)
	fmt.Fprintf(w, "Invalid Tables: %d\n", s.InvalidTables)
	fmt.Fprintf(w, "Total Rows: %d\n", s.TotalRows)
	fmt.Fprintf(w, "Validation Time: %v\n", s.ValidationTime)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range s.Errors {
			fmt.Fprintf(w, "- %s\n", err)
		}
	}
	fmt.Fprintln(w, "--------------")
}
