package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
	"github.com/SusheelSathyaraj/CloudDataManager/monitoring"
)

func newMockClient(t *testing.T, dialect Dialect) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewClientWithDB(db, dialect), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBuildInsert(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{oracleDialect{}, `INSERT INTO SALES ("ID", "NAME", "AMOUNT") VALUES (:1, :2, :3)`},
		{postgresDialect{}, `INSERT INTO SALES ("ID", "NAME", "AMOUNT") VALUES ($1, $2, $3)`},
		{mysqlDialect{}, "INSERT INTO SALES (`ID`, `NAME`, `AMOUNT`) VALUES (?, ?, ?)"},
	}
	for _, tc := range tests {
		got, err := BuildInsert(tc.dialect, "SALES", []string{"ID", "NAME", "AMOUNT"})
		if err != nil {
			t.Fatalf("[%s] BuildInsert failed: %v", tc.dialect.Name(), err)
		}
		if got != tc.want {
			t.Errorf("[%s] got %s\nwant %s", tc.dialect.Name(), got, tc.want)
		}
	}
}

func TestBuildInsertRejects(t *testing.T) {
	if _, err := BuildInsert(oracleDialect{}, "SALES; DROP TABLE X", []string{"A"}); !errors.Is(err, ErrInvalidTableName) {
		t.Errorf("Expected ErrInvalidTableName, got %v", err)
	}
	if _, err := BuildInsert(oracleDialect{}, "SALES", nil); err == nil {
		t.Errorf("Expected error for empty column list")
	}
}

func TestQuoteIdentifierEscapes(t *testing.T) {
	if got := (oracleDialect{}).QuoteIdentifier(`A"B`); got != `"A""B"` {
		t.Errorf("unexpected oracle quoting %s", got)
	}
	if got := (mysqlDialect{}).QuoteIdentifier("A`B"); got != "`A``B`" {
		t.Errorf("unexpected mysql quoting %s", got)
	}
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"SALES", true},
		{"admin.sales_2024", true},
		{"T$1#X", true},
		{"", false},
		{"sales data", false},
		{"sales;drop", false},
		{"a.b.c", false},
		{".sales", false},
		{`"SALES"`, false},
	}
	for _, tc := range tests {
		err := ValidateTableName(tc.name)
		if (err == nil) != tc.valid {
			t.Errorf("ValidateTableName(%q) = %v, valid %v", tc.name, err, tc.valid)
		}
	}
}

func TestCreateTableSQLOracleTypes(t *testing.T) {
	df, err := frame.NewWithTypes(
		[]string{"A", "B", "C", "D", "E", "F", "G", "H"},
		[]frame.DType{frame.Int64, frame.Int32, frame.Int16, frame.Float64, frame.Float32, frame.Object, frame.Datetime, frame.Bool},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := CreateTableSQL(oracleDialect{}, df, "T1", "A", "B")
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE T1 ("A" NUMBER(19), "B" NUMBER(10), "C" NUMBER(5), "D" BINARY_DOUBLE, "E" BINARY_FLOAT, ` +
		`"F" VARCHAR2(4000), "G" TIMESTAMP, "H" NUMBER(1), PRIMARY KEY ("A", "B"))`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	if _, err := CreateTableSQL(oracleDialect{}, df, "T1", "MISSING"); !errors.Is(err, frame.ErrUnknownColumn) {
		t.Errorf("Expected ErrUnknownColumn for unknown primary key, got %v", err)
	}
}

func TestExecuteCommit(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE SALES SET AMOUNT = :1")).
		WithArgs(10).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := c.Execute(context.Background(), "UPDATE SALES SET AMOUNT = :1", []any{10})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Expected 4 rows affected, got %d", n)
	}
	checkExpectations(t, mock)
}

func TestExecuteWithoutCommitRollsBack(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM SALES").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	if _, err := c.Execute(context.Background(), "DELETE FROM SALES", nil, WithCommit(false)); err != nil {
		t.Fatal(err)
	}
	checkExpectations(t, mock)
}

func TestExecuteUnknownRowCount(t *testing.T) {
	c, mock := newMockClient(t, postgresDialect{})
	countErr := errors.New("rows affected not supported")

	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewErrorResult(countErr))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("ANALYZE").WillReturnResult(sqlmock.NewErrorResult(countErr))

	ctx := context.Background()
	n, err := c.Execute(ctx, "CREATE INDEX idx ON t (a)", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != -1 {
		t.Errorf("Expected -1 for an unknown row count, got %d", n)
	}

	s, err := c.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := s.Execute(ctx, "ANALYZE t"); err != nil || n != -1 {
		t.Errorf("Session Execute returned %d, %v", n, err)
	}
	checkExpectations(t, mock)
}

func TestExecuteManyCommitsEachBatch(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	query := `INSERT INTO T ("A") VALUES (:1)`
	rows := [][]any{{1}, {2}, {3}, {4}, {5}}

	for _, batch := range [][]int{{1, 2}, {3, 4}, {5}} {
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(regexp.QuoteMeta(query))
		for _, v := range batch {
			prep.ExpectExec().WithArgs(v).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()
	}

	tracker := monitoring.NewProgressTracker("test", 5, 0)
	n, err := c.ExecuteMany(context.Background(), query, rows, WithBatchSize(2), WithProgress(tracker))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("Expected 5 rows, got %d", n)
	}
	if m := tracker.GetMetrics(); m.ProcessedRows != 5 || m.CompletedBatches != 3 {
		t.Errorf("unexpected progress %+v", m)
	}
	checkExpectations(t, mock)
}

func TestExecuteManyWithoutCommit(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	query := `INSERT INTO T ("A") VALUES (:1)`

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(query))
	prep.ExpectExec().WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	prep = mock.ExpectPrepare(regexp.QuoteMeta(query))
	prep.ExpectExec().WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	n, err := c.ExecuteMany(context.Background(), query, [][]any{{1}, {2}, {3}}, WithBatchSize(2), WithCommit(false))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows, got %d", n)
	}
	checkExpectations(t, mock)
}

func TestExecuteManyFailureStops(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	query := `INSERT INTO T ("A") VALUES (:1)`

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(query))
	prep.ExpectExec().WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	prep = mock.ExpectPrepare(regexp.QuoteMeta(query))
	prep.ExpectExec().WithArgs(2).WillReturnError(errors.New("ORA-00001: unique constraint violated"))
	mock.ExpectRollback()

	n, err := c.ExecuteMany(context.Background(), query, [][]any{{1}, {2}, {3}}, WithBatchSize(1))
	if err == nil || !strings.Contains(err.Error(), "ORA-00001") {
		t.Fatalf("Expected insert error, got %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 committed row, got %d", n)
	}
	checkExpectations(t, mock)
}

func salesFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i + 1, "item", i%2 == 0}
	}
	df, err := frame.New([]string{"ID", "NAME", "ACTIVE"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	return df
}

func expectTableExists(mock sqlmock.Sqlmock, name string, count int) {
	mock.ExpectQuery(regexp.QuoteMeta((oracleDialect{}).TableExistsQuery())).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"CNT"}).AddRow(count))
}

func TestWriteDataFrameCreatesAndBulkInserts(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	df := salesFrame(t, 3)

	expectTableExists(mock, "SALES", 0)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE ADMIN.SALES ("ID" NUMBER(19), "NAME" VARCHAR2(4000), "ACTIVE" NUMBER(1))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	insert := regexp.QuoteMeta(`INSERT INTO ADMIN.SALES ("ID", "NAME", "ACTIVE") VALUES (:1, :2, :3)`)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insert)
	prep.ExpectExec().WithArgs(int64(1), "item", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(2), "item", int64(0)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	prep = mock.ExpectPrepare(insert)
	prep.ExpectExec().WithArgs(int64(3), "item", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := c.WriteDataFrame(context.Background(), df, "ADMIN.SALES", WriteOptions{BatchSize: 2})
	if err != nil {
		t.Fatalf("WriteDataFrame failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows written, got %d", n)
	}
	checkExpectations(t, mock)
}

func TestWriteDataFrameSmallFrameSingleTransaction(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	df := salesFrame(t, 3)

	expectTableExists(mock, "SALES", 1)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO SALES")
	for i := 0; i < 3; i++ {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if _, err := c.WriteDataFrame(context.Background(), df, "SALES", WriteOptions{}); err != nil {
		t.Fatalf("WriteDataFrame failed: %v", err)
	}
	checkExpectations(t, mock)
}

func TestWriteDataFrameFailWhenExists(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})

	expectTableExists(mock, "SALES", 1)

	_, err := c.WriteDataFrame(context.Background(), salesFrame(t, 1), "SALES", WriteOptions{IfExists: IfExistsFail})
	if !errors.Is(err, ErrTableExists) {
		t.Errorf("Expected ErrTableExists, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestWriteDataFrameReplaceIgnoresDropError(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE SALES").WillReturnError(errors.New("ORA-00942: table or view does not exist"))
	mock.ExpectRollback()
	expectTableExists(mock, "SALES", 0)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE SALES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO SALES")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := c.WriteDataFrame(context.Background(), salesFrame(t, 1), "SALES", WriteOptions{IfExists: IfExistsReplace})
	if err != nil {
		t.Fatalf("WriteDataFrame failed: %v", err)
	}
	checkExpectations(t, mock)
}

func TestWriteDataFrameInvalidOptions(t *testing.T) {
	c, _ := newMockClient(t, oracleDialect{})
	df := salesFrame(t, 1)

	tests := []struct {
		table string
		opts  WriteOptions
		want  error
	}{
		{"SALES", WriteOptions{IfExists: "truncate"}, ErrInvalidOption},
		{"bad name", WriteOptions{}, ErrInvalidTableName},
	}
	for _, tc := range tests {
		if _, err := c.WriteDataFrame(context.Background(), df, tc.table, tc.opts); !errors.Is(err, tc.want) {
			t.Errorf("Expected %v, got %v", tc.want, err)
		}
	}
}

func TestReadSQL(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM SALES").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME", "CREATED"}).
			AddRow(int64(1), []byte("first"), created).
			AddRow(int64(2), nil, created))

	df, err := c.ReadSQL(context.Background(), "SELECT * FROM SALES")
	if err != nil {
		t.Fatal(err)
	}
	if df.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", df.Len())
	}
	want := []frame.DType{frame.Int64, frame.Object, frame.Datetime}
	for i, dt := range df.DTypes() {
		if dt != want[i] {
			t.Errorf("column %d: expected %s, got %s", i, want[i], dt)
		}
	}
	if v, _ := df.Value(0, "NAME"); v != "first" {
		t.Errorf("Expected []byte converted to string, got %v (%T)", v, v)
	}
	checkExpectations(t, mock)
}

func TestTableExistsAndInfo(t *testing.T) {
	c, mock := newMockClient(t, oracleDialect{})

	expectTableExists(mock, "SALES", 1)
	mock.ExpectQuery(regexp.QuoteMeta((oracleDialect{}).TableInfoQuery())).
		WithArgs("SALES").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "DATA_LENGTH", "NULLABLE"}).
			AddRow("ID", "NUMBER", int64(22), "N").
			AddRow("NAME", "VARCHAR2", int64(4000), "Y"))

	ok, err := c.TableExists(context.Background(), "admin.SALES")
	if err != nil || !ok {
		t.Fatalf("Expected table to exist, got %v, %v", ok, err)
	}

	info, err := c.GetTableInfo(context.Background(), "SALES")
	if err != nil {
		t.Fatal(err)
	}
	names, _ := info.Column("COLUMN_NAME")
	if len(names) != 2 || names[1] != "NAME" {
		t.Errorf("unexpected table info %v", names)
	}
	checkExpectations(t, mock)
}

func TestCountRows(t *testing.T) {
	c, mock := newMockClient(t, postgresDialect{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sales")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := c.CountRows(context.Background(), "sales")
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("Expected 42, got %d", n)
	}
	checkExpectations(t, mock)
}

func TestSession(t *testing.T) {
	c, mock := newMockClient(t, postgresDialect{})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET a = $1")).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO t (a) VALUES ($1)"))
	prep.ExpectExec().WithArgs(true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	s, err := c.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := s.Execute(ctx, "UPDATE t SET a = $1", 1); err != nil || n != 3 {
		t.Fatalf("Execute returned %d, %v", n, err)
	}
	if _, err := s.ExecuteMany(ctx, "INSERT INTO t (a) VALUES ($1)", [][]any{{true}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := s.Rollback(); !errors.Is(err, ErrSessionDone) {
		t.Errorf("Expected ErrSessionDone after commit, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestDialectDSN(t *testing.T) {
	w := config.WarehouseConfig{Username: "u", Password: "p'w"}

	tests := []struct {
		dialect Dialect
		conn    string
		check   func(string) bool
	}{
		{postgresDialect{}, "db.example.com:5433/sales", func(s string) bool {
			return strings.Contains(s, "host='db.example.com'") && strings.Contains(s, "port='5433'") &&
				strings.Contains(s, "dbname='sales'") && strings.Contains(s, `password='p\'w'`)
		}},
		{postgresDialect{}, "postgres://db.example.com/sales?sslmode=require", func(s string) bool {
			return strings.Contains(s, "sslmode='require'") && strings.Contains(s, "user='u'")
		}},
		{mysqlDialect{}, "db.example.com:3306/sales", func(s string) bool {
			return strings.HasPrefix(s, "u:p'w@tcp(db.example.com:3306)/sales?") && strings.Contains(s, "parseTime=true")
		}},
		{oracleDialect{}, "oracle://u:p@host:1521/svc", func(s string) bool {
			return s == "oracle://u:p@host:1521/svc"
		}},
		{oracleDialect{}, "adb.eu-frankfurt-1.oraclecloud.com:1522/abc_high.adb.oraclecloud.com", func(s string) bool {
			return strings.HasPrefix(s, "oracle://")
		}},
	}
	for _, tc := range tests {
		w.ConnectionString = tc.conn
		dsn, err := tc.dialect.DSN(w)
		if err != nil {
			t.Errorf("[%s] DSN(%q) failed: %v", tc.dialect.Name(), tc.conn, err)
			continue
		}
		if !tc.check(dsn) {
			t.Errorf("[%s] unexpected dsn %q", tc.dialect.Name(), dsn)
		}
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"", "oracle", "postgres", "postgresql", "MySQL"} {
		if _, err := DialectFor(driver); err != nil {
			t.Errorf("DialectFor(%q) failed: %v", driver, err)
		}
	}
	if _, err := DialectFor("mongodb"); err == nil {
		t.Errorf("Expected error for unsupported driver")
	}
}

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	w := (&config.Config{Warehouse: &config.WarehouseConfig{PoolMax: 7}}).WarehouseConfig()
	configurePool(db, w)
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Errorf("Expected 7 max open connections, got %d", got)
	}
}
