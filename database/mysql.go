package database

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

type mysqlDialect struct{}

var mysqlTypes = map[frame.DType]string{
	frame.Int64:    "BIGINT",
	frame.Int32:    "INT",
	frame.Int16:    "SMALLINT",
	frame.Float64:  "DOUBLE",
	frame.Float32:  "FLOAT",
	frame.Object:   "VARCHAR(4000)",
	frame.Datetime: "DATETIME(6)",
	frame.Bool:     "TINYINT(1)",
}

func (mysqlDialect) Name() string       { return config.DriverMySQL }
func (mysqlDialect) DriverName() string { return "mysql" }

// DSN accepts a full go-sql-driver DSN (user@tcp(host)/db) or host:port/dbname
func (mysqlDialect) DSN(w config.WarehouseConfig) (string, error) {
	var cfg *mysql.Config
	if strings.Contains(w.ConnectionString, "@") {
		parsed, err := mysql.ParseDSN(w.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		addr, dbname, _ := strings.Cut(w.ConnectionString, "/")
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.DBName = dbname
	}
	cfg.User = w.Username
	cfg.Passwd = w.Password
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) QuoteIdentifier(name string) string { return quoteWith(name, "`") }

func (mysqlDialect) ColumnType(dt frame.DType) string {
	if t, ok := mysqlTypes[dt]; ok {
		return t
	}
	return "VARCHAR(4000)"
}

func (mysqlDialect) Bind(v any) any { return v }

func (mysqlDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) AS cnt FROM information_schema.tables
WHERE UPPER(table_name) = UPPER(?) AND table_schema = DATABASE()`
}

func (mysqlDialect) TableInfoQuery() string {
	return `SELECT column_name, data_type, character_maximum_length AS data_length, is_nullable AS nullable
FROM information_schema.columns
WHERE UPPER(table_name) = UPPER(?) AND table_schema = DATABASE()
ORDER BY ordinal_position`
}
