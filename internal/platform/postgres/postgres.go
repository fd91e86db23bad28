// Package postgres owns the database handle: pgx pool for queries, the
// database/sql bridge for stores and goose, and embedded migrations applied
// at startup.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB bundles the pgx pool with its database/sql view.
type DB struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

// Connect opens the pool, bridges it to database/sql, and applies pending
// migrations.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(db); err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool, SQL: db}, nil
}

// Migrate applies the embedded goose migrations. Exported so integration
// tests can migrate containers they own.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases both handles.
func (d *DB) Close() {
	d.SQL.Close()
	d.Pool.Close()
}
