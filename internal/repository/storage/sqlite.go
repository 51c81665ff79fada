package storage

import (
	"context"
	"fmt"

	// registers the pure Go "sqlite" driver with database/sql.
	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

const driverName = "sqlite"

type SQLiteStorage struct {
	Connection *sqlx.DB
}

func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	conn, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	// a single connection serializes every transaction, and keeps ":memory:" databases shared.
	conn.SetMaxOpenConns(1)

	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &SQLiteStorage{Connection: conn}, nil
}

func (that *SQLiteStorage) Init(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		record BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := that.Connection.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}

	return nil
}

func (that *SQLiteStorage) Close() error {
	return that.Connection.Close()
}
