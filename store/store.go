package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"helprelay/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB is the relay's journal: an append-only audit log of request and
// device events plus the outbox feeding the message bus. It is never read
// back into live state.
type DB struct {
	*sql.DB
	dialect Dialect
	driver  string
}

// ErrDisabled is returned by Open when the journal driver is "none".
var ErrDisabled = errors.New("audit journal disabled")

// Open connects the journal and creates any missing tables.
func Open(cfg *config.AuditConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		// One writer keeps SQLite from returning SQLITE_BUSY under bursts.
		return connect("sqlite", sqliteDSN(cfg.SQLite.Path), sqliteDialect{}, 1)
	case "postgres":
		return connect("pgx", postgresDSN(&cfg.Postgres), postgresDialect{}, 0)
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unsupported journal driver: %s", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
}

func postgresDSN(cfg *config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)
}

func connect(sqlDriver, dsn string, d Dialect, maxConns int) (*DB, error) {
	name := "postgres"
	if sqlDriver == "sqlite" {
		name = "sqlite"
	}
	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	db := &DB{DB: sqlDB, dialect: d, driver: name}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", name, err)
	}
	return db, nil
}

func (db *DB) Dialect() Dialect { return db.dialect }
func (db *DB) Driver() string   { return db.driver }

// Q rewrites ? placeholders and datetime literals for PostgreSQL, passes through for SQLite.
func (db *DB) Q(query string) string {
	if db.driver == "postgres" {
		query = strings.ReplaceAll(query, "datetime('now','localtime')", "NOW()")
		return Rebind(query)
	}
	return query
}

func (db *DB) migrate() error {
	for i, stmt := range schema(db.dialect) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
