package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database and applies migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            first_name TEXT,
            last_name TEXT,
            profile_image TEXT,
            role TEXT NOT NULL DEFAULT 'USER'
        );`,
	`CREATE TABLE IF NOT EXISTS memberships (
            id BIGSERIAL PRIMARY KEY,
            context_type TEXT NOT NULL CHECK (context_type IN ('GROUP', 'ACTIVITY')),
            context_id BIGINT NOT NULL,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            role TEXT NOT NULL DEFAULT 'member',
            warning_count INT NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'ACTIVE',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_chat_at TIMESTAMPTZ,
            UNIQUE(context_type, context_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            context_type TEXT NOT NULL,
            context_id BIGINT NOT NULL,
            sender_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'USER',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (context_type, context_id, id DESC);`,
	`CREATE TABLE IF NOT EXISTS warnings (
            id BIGSERIAL PRIMARY KEY,
            context_type TEXT NOT NULL,
            context_id BIGINT NOT NULL,
            target_user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            issued_by BIGINT NOT NULL REFERENCES users(id),
            reason VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS points_ledger (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            points INT NOT NULL,
            reason TEXT NOT NULL,
            context_type TEXT,
            context_id BIGINT,
            created_by BIGINT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
