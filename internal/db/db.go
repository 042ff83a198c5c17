// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax for the two supported drivers.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unsupported database driver %q", driver)
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Rebind rewrites ? placeholders into $1..$n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
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

// Open connects and pings. An empty sqlite path means an in-memory database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, 0, err
	}

	inMemory := false
	if dialect == SQLite {
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			dsn = ":memory:"
		}
		inMemory = dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		if !inMemory {
			if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
				conn.Close()
				return nil, 0, fmt.Errorf("enable WAL: %w", err)
			}
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("ping %s: %w", driver, err)
	}
	return conn, dialect, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		seq BIGINT NOT NULL,
		username TEXT NOT NULL,
		subject TEXT NOT NULL,
		total INTEGER NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		sent INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		delivered INTEGER NOT NULL DEFAULT 0,
		bounced INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_user_created ON campaigns(username, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);`,
	`CREATE TABLE IF NOT EXISTS sender_profiles (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		smtp_username TEXT NOT NULL,
		smtp_password TEXT NOT NULL,
		from_email TEXT NOT NULL,
		use_tls BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sender_profiles_user ON sender_profiles(username, created_at);`,
}

// EnsureSchema creates the tables if they are missing. The DDL is valid for
// both Postgres and SQLite.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, statement := range schema {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
