package database

import (
	"fmt"
	"strings"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

// Dialect holds what differs between warehouse engines
type Dialect interface {
	Name() string

	// DriverName is the database/sql driver to open
	DriverName() string
	DSN(w config.WarehouseConfig) (string, error)

	// Placeholder returns the bind marker for the i-th parameter, counting from 1
	Placeholder(i int) string
	QuoteIdentifier(name string) string

	// ColumnType maps a frame dtype to a column definition type
	ColumnType(dt frame.DType) string

	// Bind adapts a frame value for the driver
	Bind(v any) any

	// TableExistsQuery counts tables matching one bound name, case-insensitively
	TableExistsQuery() string

	// TableInfoQuery lists column name, data type, length and nullability
	// of one bound table name in column order
	TableInfoQuery() string
}

// DialectFor returns the dialect of a configured driver
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case config.DriverOracle, "":
		return oracleDialect{}, nil
	case config.DriverPostgres, "postgresql":
		return postgresDialect{}, nil
	case config.DriverMySQL:
		return mysqlDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
}

func quoteWith(name, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// BuildInsert builds one parameterized INSERT for the given column list:
// INSERT INTO <table> ("C1", "C2") VALUES (:1, :2) in Oracle syntax.
func BuildInsert(d Dialect, table string, columns []string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns to insert into %s", table)
	}

	names := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		names[i] = d.QuoteIdentifier(col)
		placeholders[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", ")), nil
}

// CreateTableSQL builds a CREATE TABLE statement from the frame's dtypes
func CreateTableSQL(d Dialect, df *frame.Frame, table string, primaryKey ...string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	if df.Width() == 0 {
		return "", fmt.Errorf("cannot create table %s without columns", table)
	}

	columns := df.Columns()
	dtypes := df.DTypes()
	defs := make([]string, 0, len(columns)+1)
	for i, col := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", d.QuoteIdentifier(col), d.ColumnType(dtypes[i])))
	}

	if len(primaryKey) > 0 {
		pk := make([]string, len(primaryKey))
		for i, col := range primaryKey {
			if _, ok := df.DType(col); !ok {
				return "", fmt.Errorf("primary key column %q: %w", col, frame.ErrUnknownColumn)
			}
			pk[i] = d.QuoteIdentifier(col)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")), nil
}
