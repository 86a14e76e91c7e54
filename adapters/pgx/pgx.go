// Package pgx stores favorites and profiles in Postgres through a pgxpool.
package pgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lborres/folio/core"
)

type Adapter struct {
	pool *pgxpool.Pool
}

var (
	_ core.FavoriteStore = (*Adapter)(nil)
	_ core.ProfileStore  = (*Adapter)(nil)
)

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{
		pool: pool,
	}
}

// Connect opens a pool for dsn and checks it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const uniqueViolation = "23505"

// uniqueConstraint returns the name of the violated unique constraint, if err is one.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
