// Package dialect describes the SQL differences between the databases the
// store runs on: driver names, column types, placeholders and conflict
// clauses.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Name identifies a supported database.
type Name string

const (
	SQLite   Name = "sqlite"
	Postgres Name = "postgres"
	MySQL    Name = "mysql"
)

// Columns are the column types the schema is written in.
type Columns struct {
	Key       string // primary, unique and indexed strings
	Text      string
	Timestamp string
	Bool      string
	Real      string
}

// Dialect is a supported database. The zero value is not usable; get one
// from ByName or FromDriverName.
type Dialect struct {
	Name    Name
	Driver  string // database/sql driver name
	Columns Columns
	// Init runs once after the pool is opened.
	Init []string

	numbered   bool // $1, $2 placeholders
	duplicates bool // ON DUPLICATE KEY instead of ON CONFLICT
	excluded   string
	sep        string
}

var dialects = map[Name]*Dialect{
	SQLite: {
		Name:    SQLite,
		Driver:  "sqlite",
		Columns: Columns{Key: "TEXT", Text: "TEXT", Timestamp: "TIMESTAMP", Bool: "INTEGER", Real: "REAL"},
		Init: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		},
		excluded: "excluded",
		sep:      "=",
	},
	Postgres: {
		Name:     Postgres,
		Driver:   "pgx",
		Columns:  Columns{Key: "TEXT", Text: "TEXT", Timestamp: "TIMESTAMP WITH TIME ZONE", Bool: "BOOLEAN", Real: "DOUBLE PRECISION"},
		numbered: true,
		excluded: "EXCLUDED",
		sep:      " = ",
	},
	// DSNs need parseTime=true so timestamps scan into time.Time.
	MySQL: {
		Name:       MySQL,
		Driver:     "mysql",
		Columns:    Columns{Key: "VARCHAR(191)", Text: "LONGTEXT", Timestamp: "DATETIME(6)", Bool: "TINYINT(1)", Real: "DOUBLE"},
		duplicates: true,
		sep:        " = ",
	},
}

// ByName returns the dialect called name.
func ByName(name Name) (*Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
	return d, nil
}

// FromDriverName maps a configured driver name, including common aliases,
// to its dialect.
func FromDriverName(driver string) (*Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return dialects[SQLite], nil
	case "postgres", "postgresql", "pgx":
		return dialects[Postgres], nil
	case "mysql":
		return dialects[MySQL], nil
	}
	return nil, fmt.Errorf("unsupported driver: %s", driver)
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d *Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch != '?' {
			b.WriteRune(ch)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// UpsertClause overwrites columns with the inserted values when key
// already exists. With no columns the insert is a no-op on conflict.
func (d *Dialect) UpsertClause(key, columns []string) string {
	return d.onConflict(key, columns, func(col, incoming string) string { return incoming })
}

// IncrementClause adds the inserted values of columns to the existing row
// when key already exists.
func (d *Dialect) IncrementClause(key, columns []string) string {
	return d.onConflict(key, columns, func(col, incoming string) string {
		if d.sep == "=" {
			return col + "+" + incoming
		}
		return col + " + " + incoming
	})
}

func (d *Dialect) onConflict(key, columns []string, value func(col, incoming string) string) string {
	if d.duplicates {
		if len(columns) == 0 {
			return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", key[0], key[0])
		}
		sets := make([]string, len(columns))
		for i, col := range columns {
			sets[i] = col + d.sep + value(col, "VALUES("+col+")")
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}

	target := strings.Join(key, ", ")
	if len(columns) == 0 {
		return "ON CONFLICT (" + target + ") DO NOTHING"
	}
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = col + d.sep + value(col, d.excluded+"."+col)
	}
	return "ON CONFLICT (" + target + ") DO UPDATE SET " + strings.Join(sets, ", ")
}
