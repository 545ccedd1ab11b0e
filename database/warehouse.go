// Package database runs queries and bulk writes against the data warehouse
// through database/sql.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
	"github.com/SusheelSathyaraj/CloudDataManager/monitoring"
)

const (
	DefaultExecBatchSize  = 1000
	DefaultWriteBatchSize = 10000
)

// if_exists modes of WriteDataFrame
const (
	IfExistsAppend  = "append"
	IfExistsReplace = "replace"
	IfExistsFail    = "fail"
)

// insert methods of WriteDataFrame
const (
	MethodMulti  = "multi"
	MethodSingle = "single"
)

var (
	ErrTableExists      = errors.New("table already exists")
	ErrInvalidTableName = errors.New("invalid table name")
	ErrInvalidOption    = errors.New("invalid option")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_$#]+(\.[A-Za-z0-9_$#]+)?$`)

// ValidateTableName accepts plain or schema qualified names made of letters,
// digits, _, $ and #
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// bareName strips the schema from a qualified table name
func bareName(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

type execOptions struct {
	commit    bool
	batchSize int
	progress  *monitoring.ProgressTracker
}

// ExecOption tunes Execute and ExecuteMany
type ExecOption func(*execOptions)

// WithCommit controls whether work is committed. Without commit the
// statements are rolled back when the call returns.
func WithCommit(commit bool) ExecOption {
	return func(o *execOptions) { o.commit = commit }
}

func WithBatchSize(n int) ExecOption {
	return func(o *execOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithProgress reports rows and batches to tracker
func WithProgress(tracker *monitoring.ProgressTracker) ExecOption {
	return func(o *execOptions) { o.progress = tracker }
}

func newExecOptions(opts []ExecOption) execOptions {
	o := execOptions{commit: true, batchSize: DefaultExecBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WriteOptions controls WriteDataFrame. The zero value appends in batches of
// DefaultWriteBatchSize.
type WriteOptions struct {
	IfExists  string
	BatchSize int
	Method    string
	Progress  *monitoring.ProgressTracker
}

// Client talks to the warehouse through a database/sql pool
type Client struct {
	db      *sql.DB
	dialect Dialect
}

var _ Warehouse = (*Client)(nil)

// NewClient opens the pool described by the warehouse section
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.HasWarehouse() {
		return nil, &config.ValidationError{Section: "warehouse", Message: `missing "warehouse" section`}
	}
	w := cfg.WarehouseConfig()
	dialect, err := DialectFor(w.Driver)
	if err != nil {
		return nil, err
	}
	db, err := openPool(ctx, dialect, w)
	if err != nil {
		return nil, err
	}
	return &Client{db: db, dialect: dialect}, nil
}

// NewClientWithDB wraps an open pool
func NewClientWithDB(db *sql.DB, dialect Dialect) *Client {
	return &Client{db: db, dialect: dialect}
}

func (c *Client) Dialect() Dialect { return c.dialect }

// ReadSQL runs a query and returns the result set as a frame
func (c *Client) ReadSQL(ctx context.Context, query string, args ...any) (*frame.Frame, error) {
	return readSQL(ctx, c.db, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readSQL(ctx context.Context, q querier, query string, args ...any) (*frame.Frame, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}
	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	// columns without values stay object
	dtypes := make([]frame.DType, len(columns))
	column := make([]any, len(data))
	for c := range columns {
		for r, row := range data {
			column[r] = row[c]
		}
		dtypes[c] = frame.InferDType(column)
	}

	klog.V(3).InfoS("Query returned", "rows", len(data), "columns", len(columns))
	return frame.NewWithTypes(columns, dtypes, data)
}

// Execute runs one statement and returns the affected row count, -1 when
// the driver cannot report it
func (c *Client) Execute(ctx context.Context, query string, args []any, opts ...ExecOption) (int64, error) {
	o := newExecOptions(opts)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	n := affectedRows(res)

	if !o.commit {
		return n, tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// affectedRows reports -1 when the driver cannot count the affected rows
func affectedRows(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		klog.V(2).InfoS("Affected row count unavailable", "err", err)
		return -1
	}
	return n
}

// ExecuteMany runs one statement for every row in batches. With commit each
// batch is committed on its own; without it every batch shares a single
// transaction that is rolled back at the end.
func (c *Client) ExecuteMany(ctx context.Context, query string, rows [][]any, opts ...ExecOption) (int64, error) {
	o := newExecOptions(opts)

	var (
		total int64
		tx    *sql.Tx
	)
	err := NewBatchProcessor(o.batchSize).ProcessInBatches(rows, func(batch [][]any) error {
		if tx == nil {
			var err error
			if tx, err = c.db.BeginTx(ctx, nil); err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}
		}
		n, err := execBatch(ctx, tx, c.dialect, query, batch)
		if err != nil {
			tx.Rollback()
			tx = nil
			return err
		}
		if o.commit {
			if err := tx.Commit(); err != nil {
				tx = nil
				return fmt.Errorf("failed to commit transaction: %w", err)
			}
			tx = nil
		}
		total += n
		o.report(len(batch))
		return nil
	})
	if tx != nil {
		tx.Rollback()
	}
	if err != nil {
		if o.progress != nil {
			o.progress.AddError(err)
		}
		return total, err
	}
	return total, nil
}

func (o execOptions) report(rows int) {
	if o.progress == nil {
		return
	}
	o.progress.AddRows(int64(rows))
	o.progress.CompleteBatch()
}

// execBatch prepares query once on tx and executes it for every row
func execBatch(ctx context.Context, tx *sql.Tx, d Dialect, query string, batch [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var total int64
	for _, row := range batch {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = d.Bind(v)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return total, fmt.Errorf("failed to insert row: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = 1
		}
		total += n
	}
	return total, nil
}

// BuildInsert builds the INSERT used by bulk writes in this client's dialect
func (c *Client) BuildInsert(table string, columns []string) (string, error) {
	return BuildInsert(c.dialect, table, columns)
}

// WriteDataFrame writes every row of df into table, creating it when missing
func (c *Client) WriteDataFrame(ctx context.Context, df *frame.Frame, table string, opts WriteOptions) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	if df.Width() == 0 {
		return 0, fmt.Errorf("cannot write a frame without columns to %s", table)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}

	switch opts.IfExists {
	case IfExistsAppend, "":
	case IfExistsReplace:
		if _, err := c.Execute(ctx, "DROP TABLE "+table, nil); err != nil {
			klog.V(2).InfoS("Ignoring drop failure", "table", table, "err", err)
		}
	case IfExistsFail:
	default:
		return 0, fmt.Errorf("%w: if_exists %q, expected append, replace or fail", ErrInvalidOption, opts.IfExists)
	}

	exists, err := c.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if exists && opts.IfExists == IfExistsFail {
		return 0, fmt.Errorf("%w: %s", ErrTableExists, table)
	}
	if !exists {
		if err := c.CreateTableFromDataFrame(ctx, df, table); err != nil {
			return 0, err
		}
	}

	insert, err := c.BuildInsert(table, df.Columns())
	if err != nil {
		return 0, err
	}

	execOpts := []ExecOption{WithProgress(opts.Progress)}
	switch opts.Method {
	case MethodMulti, "":
		if df.Len() > batchSize {
			klog.V(1).InfoS("Bulk inserting", "table", table, "rows", df.Len(), "batchSize", batchSize)
			execOpts = append(execOpts, WithBatchSize(batchSize))
			break
		}
		execOpts = append(execOpts, WithBatchSize(df.Len()))
	case MethodSingle:
		execOpts = append(execOpts, WithBatchSize(df.Len()))
	default:
		return 0, fmt.Errorf("%w: method %q, expected multi or single", ErrInvalidOption, opts.Method)
	}

	n, err := c.ExecuteMany(ctx, insert, df.Rows(), execOpts...)
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", table, err)
	}
	klog.V(1).InfoS("Wrote frame", "table", table, "rows", df.Len())
	return int64(df.Len()), nil
}

// CreateTableFromDataFrame creates table with columns typed from df's dtypes
func (c *Client) CreateTableFromDataFrame(ctx context.Context, df *frame.Frame, table string, primaryKey ...string) error {
	ddl, err := CreateTableSQL(c.dialect, df, table, primaryKey...)
	if err != nil {
		return err
	}
	if _, err := c.Execute(ctx, ddl, nil); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	klog.V(1).InfoS("Created table", "table", table, "columns", df.Width())
	return nil
}

// TableExists looks the table up in the catalog, ignoring case
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	if err := ValidateTableName(table); err != nil {
		return false, err
	}
	var count int64
	err := c.db.QueryRowContext(ctx, c.dialect.TableExistsQuery(), bareName(table)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return count > 0, nil
}

// GetTableInfo returns one row per column: name, data type, length, nullable
func (c *Client) GetTableInfo(ctx context.Context, table string) (*frame.Frame, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	return c.ReadSQL(ctx, c.dialect.TableInfoQuery(), bareName(table))
}

// CountRows returns SELECT COUNT(*) for table
func (c *Client) CountRows(ctx context.Context, table string) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	var count int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return count, nil
}

// Begin starts a session whose commit is left to the caller
func (c *Client) Begin(ctx context.Context) (*Session, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{tx: tx, dialect: c.dialect}, nil
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
