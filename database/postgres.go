package database

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
)

type postgresDialect struct{}

var postgresTypes = map[frame.DType]string{
	frame.Int64:    "BIGINT",
	frame.Int32:    "INTEGER",
	frame.Int16:    "SMALLINT",
	frame.Float64:  "DOUBLE PRECISION",
	frame.Float32:  "REAL",
	frame.Object:   "TEXT",
	frame.Datetime: "TIMESTAMP",
	frame.Bool:     "BOOLEAN",
}

func (postgresDialect) Name() string       { return config.DriverPostgres }
func (postgresDialect) DriverName() string { return "postgres" }

// DSN accepts a postgres:// URL, a keyword/value string, or host:port/dbname.
// Username and password from the config always win.
func (postgresDialect) DSN(w config.WarehouseConfig) (string, error) {
	cs := strings.TrimSpace(w.ConnectionString)

	var base string
	switch {
	case strings.HasPrefix(cs, "postgres://"), strings.HasPrefix(cs, "postgresql://"):
		kv, err := pq.ParseURL(cs)
		if err != nil {
			return "", fmt.Errorf("invalid postgres url: %w", err)
		}
		base = kv
	case strings.Contains(cs, "="):
		base = cs
	default:
		hostport, dbname, _ := strings.Cut(cs, "/")
		host, port, err := net.SplitHostPort(hostport)
		if err != nil {
			host, port = hostport, "5432"
		}
		base = fmt.Sprintf("host=%s port=%s", pgQuote(host), pgQuote(port))
		if dbname != "" {
			base += " dbname=" + pgQuote(dbname)
		}
	}
	return fmt.Sprintf("%s user=%s password=%s", base, pgQuote(w.Username), pgQuote(w.Password)), nil
}

// pgQuote quotes a keyword/value connection parameter
func pgQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

func (postgresDialect) Placeholder(i int) string { return "$" + strconv.Itoa(i) }

func (postgresDialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

func (postgresDialect) ColumnType(dt frame.DType) string {
	if t, ok := postgresTypes[dt]; ok {
		return t
	}
	return "TEXT"
}

func (postgresDialect) Bind(v any) any { return v }

func (postgresDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) AS cnt FROM information_schema.tables
WHERE UPPER(table_name) = UPPER($1) AND table_schema = current_schema()`
}

func (postgresDialect) TableInfoQuery() string {
	return `SELECT column_name, data_type, character_maximum_length AS data_length, is_nullable AS nullable
FROM information_schema.columns
WHERE UPPER(table_name) = UPPER($1) AND table_schema = current_schema()
ORDER BY ordinal_position`
}
