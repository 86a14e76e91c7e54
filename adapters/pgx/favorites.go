package pgx

import (
	"context"

	"github.com/lborres/folio/core"
)

func (a *Adapter) IsFavorite(ctx context.Context, userID, bookID string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM public.favorites WHERE user_id = $1 AND book_id = $2)`

	var exists bool
	if err := a.pool.QueryRow(ctx, q, userID, bookID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AddFavorite inserts the record; an existing (user, book) row is left as it is.
func (a *Adapter) AddFavorite(ctx context.Context, r *core.FavoriteRecord) error {
	q := `INSERT INTO public.favorites (id, user_id, book_id, book_data, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (user_id, book_id) DO NOTHING`

	var createdAt any
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt
	}
	var data any
	if len(r.BookData) > 0 {
		data = string(r.BookData)
	}
	_, err := a.pool.Exec(ctx, q, r.ID, r.UserID, r.BookID, data, createdAt)
	return err
}

func (a *Adapter) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM public.favorites WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	return err
}

func (a *Adapter) ListFavorites(ctx context.Context, userID string) ([]*core.FavoriteRecord, error) {
	q := `SELECT id::text, user_id, book_id, book_data::text, created_at
		FROM public.favorites WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := a.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*core.FavoriteRecord
	for rows.Next() {
		r := &core.FavoriteRecord{}
		var data *string
		if err := rows.Scan(&r.ID, &r.UserID, &r.BookID, &data, &r.CreatedAt); err != nil {
			return nil, err
		}
		if data != nil {
			r.BookData = []byte(*data)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
