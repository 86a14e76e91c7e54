package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the users and favorites tables. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS public.users (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL DEFAULT '',
	username    TEXT NOT NULL,
	phone       TEXT,
	birth_date  DATE,
	description TEXT,
	location    TEXT,
	avatar_url  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT users_username_key UNIQUE (username)
);

CREATE TABLE IF NOT EXISTS public.favorites (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	book_id    TEXT NOT NULL,
	book_data  JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT favorites_user_book_key UNIQUE (user_id, book_id)
);

CREATE INDEX IF NOT EXISTS favorites_user_created_idx ON public.favorites (user_id, created_at DESC);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
