package sqldb

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS instagram_posts (
		id SERIAL PRIMARY KEY,
		caption TEXT UNIQUE NOT NULL,
		image_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_state (
		id SERIAL PRIMARY KEY,
		profile TEXT UNIQUE NOT NULL,
		last_scraped_at TIMESTAMP NOT NULL,
		total_stored BIGINT NOT NULL DEFAULT 0
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS instagram_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		caption TEXT UNIQUE NOT NULL,
		image_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_state (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT UNIQUE NOT NULL,
		last_scraped_at TIMESTAMP NOT NULL,
		total_stored INTEGER NOT NULL DEFAULT 0
	)`,
}

func schemaFor(driver string) []string {
	if driver == DriverSQLite {
		return sqliteSchema
	}
	return postgresSchema
}

// isUniqueViolation reports whether err is a unique-constraint failure in
// either dialect.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
