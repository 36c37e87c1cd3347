package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// dialect captures the two differences between the SQLite and Postgres
// query text: placeholder syntax and row locking.
type dialect struct {
	name         string
	dollarParams bool
	lockSuffix   string
}

var (
	// SQLite has no row locks; BEGIN IMMEDIATE already holds the write lock.
	sqliteDialect   = dialect{name: DriverSQLite}
	postgresDialect = dialect{name: DriverPostgres, dollarParams: true, lockSuffix: " FOR UPDATE"}
)

// rebind rewrites ? placeholders to $1, $2, ... when the dialect needs it.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// locking appends the row-lock clause and rebinds.
func (d dialect) locking(query string) string {
	return d.rebind(query + d.lockSuffix)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// likeSuffix builds a LIKE pattern matching values that end in s, with the
// LIKE wildcards in s escaped (paired with ESCAPE '\').
func likeSuffix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s)
}
