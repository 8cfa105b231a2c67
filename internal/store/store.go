// Package store writes curated rows and dead-letter records to a SQL
// destination. Postgres, DuckDB and SQLite are supported.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"                  // postgres driver
	_ "github.com/marcboeker/go-duckdb/v2" // duckdb driver
	_ "github.com/mattn/go-sqlite3"        // sqlite3 driver

	"github.com/drblury/pulseflow/internal/deadletter"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
)

// Row is one curated row ready to insert. Columns and Values line up.
type Row struct {
	InsertID  string
	MessageID string
	Columns   []string
	Values    []any
}

// Store is a curated destination.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to driver with dsn. DuckDB accepts an empty dsn for an
// in-memory database.
func Open(driver, dsn string) (*Store, error) {
	d, ok := DialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, dialect: d}, nil
}

// New wraps an existing handle.
func New(db *sql.DB, driver string) (*Store, error) {
	d, ok := DialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownDriver, driver)
	}
	return &Store{db: db, dialect: d}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping checks the destination is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the curated tables and, when deadLetterTable is not
// empty, the dead-letter table.
func (s *Store) EnsureSchema(ctx context.Context, deadLetterTable string) error {
	tables := CuratedTables()
	if deadLetterTable != "" {
		tables = append(tables, DeadLetterTable(deadLetterTable))
	}
	for _, t := range tables {
		stmt, err := s.dialect.createTable(t)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows writes rows to table in one statement. Rows whose insert id is
// already present are ignored, so redelivered batches do not duplicate data.
func (s *Store) InsertRows(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := rows[0].Columns
	names := make([]string, 0, len(cols)+2)
	names = append(names, ColumnInsertID, ColumnMessageID)
	names = append(names, cols...)

	args := make([]any, 0, len(rows)*len(names))
	for i, r := range rows {
		if len(r.Columns) != len(cols) || len(r.Values) != len(cols) {
			return fmt.Errorf("row %d of %s: column count mismatch", i, table)
		}
		args = append(args, r.InsertID, r.MessageID)
		for _, v := range r.Values {
			args = append(args, sqlValue(v))
		}
	}

	stmt, err := s.insertStatement(table, names, len(rows), " ON CONFLICT ("+ColumnInsertID+") DO NOTHING")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// InsertDeadLetters writes records to the dead-letter table.
func (s *Store) InsertDeadLetters(ctx context.Context, table string, records []deadletter.Record) error {
	if len(records) == 0 {
		return nil
	}
	names := make([]string, len(deadLetterColumns))
	for i, c := range deadLetterColumns {
		names[i] = c.Name
	}
	args := make([]any, 0, len(records)*len(names))
	for _, r := range records {
		args = append(args,
			r.DLQTS, string(r.Stage), r.ErrorType, r.ErrorMessage, r.Raw,
			sqlValue(r.MetaJSON()), sqlValue(r.RowJSON), sqlValue(r.SinkErrors),
			nullString(r.Destination), nullString(r.MessageID),
		)
	}
	stmt, err := s.insertStatement(table, names, len(records), "")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %d dead letters into %s: %w", len(records), table, err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	name, err := s.dialect.Quote(table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) insertStatement(table string, columns []string, rows int, suffix string) (string, error) {
	name, err := s.dialect.Quote(table)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if quoted[i], err = s.dialect.Quote(c); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", name, strings.Join(quoted, ", "))
	n := 1
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.dialect.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	b.WriteString(suffix)
	return b.String(), nil
}

// sqlValue dereferences the optional pointers rows carry.
func sqlValue(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
