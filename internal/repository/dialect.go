package repository

import (
	"fmt"
	"regexp"
)

// Dialect selects the SQL flavour of the queue store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectPostgres, DialectSQLite:
		return Dialect(driver), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", driver)
}

var positional = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders into the dialect's form. SQLite binds ?N by index.
func (d Dialect) rebind(query string) string {
	if d == DialectSQLite {
		return positional.ReplaceAllString(query, "?$1")
	}
	return query
}

// lockClause is appended to the claim sub-select so concurrent claimants skip rows
// another transaction already holds. SQLite serialises writers and has no row locks.
func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return "FOR UPDATE SKIP LOCKED"
	}
	return ""
}
