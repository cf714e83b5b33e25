package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeWithGodstime/meetmesh/internal/config"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Database{Conn: conn}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// migrations are idempotent and run in order on every start.
var migrations = []string{
	// Owned by the Identity Service; created here so a bare database works.
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(150) UNIQUE NOT NULL,
		first_name VARCHAR(150),
		last_name VARCHAR(150),
		email VARCHAR(254) UNIQUE NOT NULL,
		avatar_url TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		uid UUID UNIQUE NOT NULL,
		pair_key VARCHAR(64) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_pair_key_idx ON conversations (pair_key)`,

	`CREATE TABLE IF NOT EXISTS participants (
		conversation_id BIGINT REFERENCES conversations(id) ON DELETE CASCADE,
		user_id INT REFERENCES users(id) ON DELETE CASCADE,
		joined_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS participants_user_idx ON participants (user_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id INT REFERENCES users(id) ON DELETE SET NULL,
		content TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,

	`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at, id)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
