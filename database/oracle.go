package database

import (
	"strconv"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

// oracleDialect targets Oracle Autonomous Data Warehouse through go-ora
type oracleDialect struct{}

var oracleTypes = map[frame.DType]string{
	frame.Int64:    "NUMBER(19)",
	frame.Int32:    "NUMBER(10)",
	frame.Int16:    "NUMBER(5)",
	frame.Float64:  "BINARY_DOUBLE",
	frame.Float32:  "BINARY_FLOAT",
	frame.Object:   "VARCHAR2(4000)",
	frame.Datetime: "TIMESTAMP",
	frame.Bool:     "NUMBER(1)",
}

func (oracleDialect) Name() string       { return config.DriverOracle }
func (oracleDialect) DriverName() string { return "oracle" }

// DSN accepts an oracle:// URL as is. Anything else is treated as a JDBC
// style connect string (host:port/service or a full descriptor); a wallet
// location switches the connection to TLS with that wallet.
func (oracleDialect) DSN(w config.WarehouseConfig) (string, error) {
	if strings.HasPrefix(w.ConnectionString, "oracle://") {
		return w.ConnectionString, nil
	}
	options := map[string]string{}
	if w.WalletLocation != "" {
		options["SSL"] = "enable"
		options["WALLET"] = w.WalletLocation
	}
	return go_ora.BuildJDBC(w.Username, w.Password, w.ConnectionString, options), nil
}

func (oracleDialect) Placeholder(i int) string { return ":" + strconv.Itoa(i) }

func (oracleDialect) QuoteIdentifier(name string) string { return quoteWith(name, `"`) }

func (oracleDialect) ColumnType(dt frame.DType) string {
	if t, ok := oracleTypes[dt]; ok {
		return t
	}
	return "VARCHAR2(4000)"
}

// Bind stores booleans as 0/1 to match NUMBER(1)
func (oracleDialect) Bind(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (oracleDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) AS CNT FROM user_tables WHERE UPPER(table_name) = UPPER(:1)`
}

func (oracleDialect) TableInfoQuery() string {
	return `SELECT column_name, data_type, data_length, nullable
FROM user_tab_columns
WHERE UPPER(table_name) = UPPER(:1)
ORDER BY column_id`
}
