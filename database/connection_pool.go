package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
)

var ErrConnection = errors.New("failed to create connection pool")

// openPool opens the driver's pool sized from the warehouse config and pings it.
// database/sql has no grow step, so pool_increment is not applied.
func openPool(ctx context.Context, d Dialect, w config.WarehouseConfig) (*sql.DB, error) {
	dsn, err := d.DSN(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	configurePool(db, w)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	klog.V(1).InfoS("Connected to warehouse", "driver", d.Name(),
		"poolMin", w.PoolMin, "poolMax", w.PoolMax, "connMaxLifetime", w.ConnMaxLifetime)
	return db, nil
}

func configurePool(db *sql.DB, w config.WarehouseConfig) {
	db.SetMaxOpenConns(w.PoolMax)
	db.SetMaxIdleConns(w.PoolMin)
	db.SetConnMaxLifetime(w.ConnMaxLifetime)
}
