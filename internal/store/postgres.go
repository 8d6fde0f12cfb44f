package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{name: "postgres", numbered: true, schema: pgSchema()}

// pgSchema derives the Postgres DDL from the SQLite one; only the column
// types differ.
func pgSchema() string {
	r := strings.NewReplacer(
		"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY",
		"REAL", "DOUBLE PRECISION",
		"INTEGER", "BIGINT",
	)
	return r.Replace(sqliteDialect.schema)
}

// NewPostgresStore connects to Postgres through the pgx database/sql driver.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(db, postgresDialect, "")
}
