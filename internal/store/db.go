// Package store persists harvesters, datasources, repositories and the
// records harvested between them. PostgreSQL is the production database;
// SQLite serves local runs and tests through the same queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/harvestagent/internal/config"
	"github.com/soyeahso/harvestagent/internal/logging"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQL dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DB wraps a database connection with migration support. The embedded
// Queries run outside any transaction; WithTx scopes them to one.
type DB struct {
	*Queries
	x       *sqlx.DB
	dialect string
	log     *logging.Logger
}

// Open connects to the configured database and runs pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*DB, error) {
	var (
		x       *sqlx.DB
		dialect string
		err     error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		dialect = DialectPostgres
		x, err = sqlx.Open("pgx", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
	case config.DriverSQLite:
		dialect = DialectSQLite
		x, err = openSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := x.PingContext(ctx); err != nil {
		x.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Redacted(), err)
	}

	db := &DB{
		Queries: &Queries{ext: x, dialect: dialect},
		x:       x,
		dialect: dialect,
		log:     log.Sub("store"),
	}

	if err := db.migrate(ctx); err != nil {
		x.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("database", cfg.Redacted()).Msg("database opened")
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database at path. Use ":memory:"
// for an in-memory database (useful for tests).
func OpenSQLite(ctx context.Context, path string, log *logging.Logger) (*DB, error) {
	return Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}, log)
}

func openSQLite(path string) (*sqlx.DB, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		// WAL mode for better concurrent read performance
		dsn += "&_pragma=journal_mode(WAL)"
	}

	x, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if memory {
		// each connection to :memory: is its own database
		x.SetMaxOpenConns(1)
	}
	return x, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.x.Close()
}

// SQL returns the underlying *sql.DB for direct queries.
func (db *DB) SQL() *sql.DB {
	return db.x.DB
}

// Dialect returns DialectPostgres or DialectSQLite.
func (db *DB) Dialect() string {
	return db.dialect
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.x.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The transaction commits if fn returns
// nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Queries{ext: tx, dialect: db.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Reset drops every agent table and recreates the schema from scratch.
func (db *DB) Reset(ctx context.Context) error {
	db.log.Warn().Msg("dropping all tables")
	cascade := ""
	if db.dialect == DialectPostgres {
		cascade = " CASCADE"
	}
	for _, table := range dropOrder {
		if _, err := db.x.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+cascade); err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}
	}
	if err := db.migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	db.log.Info().Msg("schema recreated")
	return nil
}

// migrate runs all pending migrations.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.x.ExecContext(ctx, migrationsTable[db.dialect]); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.isMigrationApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.x.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql(db.dialect)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := db.x.GetContext(ctx, &count, db.x.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}
