package database

import (
	"context"

	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

// Warehouse is what loads and exports need from the warehouse; interface for ease with mock tests
type Warehouse interface {
	ReadSQL(ctx context.Context, query string, args ...any) (*frame.Frame, error)
	WriteDataFrame(ctx context.Context, df *frame.Frame, table string, opts WriteOptions) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
	CountRows(ctx context.Context, table string) (int64, error)
}
