package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

var ErrSessionDone = errors.New("session already committed or rolled back")

// Session is one transaction on one pooled connection
type Session struct {
	tx      *sql.Tx
	dialect Dialect
	done    bool
}

func (s *Session) ReadSQL(ctx context.Context, query string, args ...any) (*frame.Frame, error) {
	if s.done {
		return nil, ErrSessionDone
	}
	return readSQL(ctx, s.tx, query, args...)
}

func (s *Session) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if s.done {
		return 0, ErrSessionDone
	}
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return affectedRows(res), nil
}

// ExecuteMany runs query for every row in batches inside the session.
// Only the batch size and progress options apply.
func (s *Session) ExecuteMany(ctx context.Context, query string, rows [][]any, opts ...ExecOption) (int64, error) {
	if s.done {
		return 0, ErrSessionDone
	}
	o := newExecOptions(opts)

	var total int64
	err := NewBatchProcessor(o.batchSize).ProcessInBatches(rows, func(batch [][]any) error {
		n, err := execBatch(ctx, s.tx, s.dialect, query, batch)
		total += n
		if err == nil {
			o.report(len(batch))
		}
		return err
	})
	return total, err
}

func (s *Session) Commit() error {
	if s.done {
		return ErrSessionDone
	}
	s.done = true
	return s.tx.Commit()
}

func (s *Session) Rollback() error {
	if s.done {
		return ErrSessionDone
	}
	s.done = true
	return s.tx.Rollback()
}
