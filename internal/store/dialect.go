package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
	DriverSQLite   = "sqlite3"
)

// Kind is the logical type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindTimestamp
)

// Dialect renders driver-specific SQL.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of ?.
	Numbered bool
	types    map[Kind]string
}

var dialects = map[string]Dialect{
	DriverPostgres: {
		Name:     DriverPostgres,
		Numbered: true,
		types:    map[Kind]string{KindText: "TEXT", KindInt: "BIGINT", KindFloat: "DOUBLE PRECISION", KindTimestamp: "TIMESTAMPTZ"},
	},
	DriverDuckDB: {
		Name:  DriverDuckDB,
		types: map[Kind]string{KindText: "VARCHAR", KindInt: "BIGINT", KindFloat: "DOUBLE", KindTimestamp: "TIMESTAMP"},
	},
	DriverSQLite: {
		Name:  DriverSQLite,
		types: map[Kind]string{KindText: "TEXT", KindInt: "INTEGER", KindFloat: "REAL", KindTimestamp: "TIMESTAMP"},
	},
}

// DialectFor returns the dialect of driver.
func DialectFor(driver string) (Dialect, bool) {
	d, ok := dialects[driver]
	return d, ok
}

// Type returns the column type for k.
func (d Dialect) Type(k Kind) string {
	return d.types[k]
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites ? placeholders to the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Quote quotes an identifier after checking it is a plain lower-case name.
func (d Dialect) Quote(ident string) (string, error) {
	if !validIdent(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// createTable renders CREATE TABLE IF NOT EXISTS for t.
func (d Dialect) createTable(t Table) (string, error) {
	name, err := d.Quote(t.Name)
	if err != nil {
		return "", err
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col, err := d.Quote(c.Name)
		if err != nil {
			return "", err
		}
		def := col + " " + d.Type(c.Kind)
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", ")), nil
}
