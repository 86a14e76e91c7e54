package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/folio/core"
)

const profileColumns = `id, email, username, COALESCE(phone, ''), birth_date, COALESCE(description, ''),
	COALESCE(location, ''), COALESCE(avatar_url, ''), created_at, updated_at`

func (a *Adapter) CreateProfile(ctx context.Context, p *core.Profile) error {
	q := `INSERT INTO public.users (id, email, username, phone, birth_date, description, location, avatar_url)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at, updated_at`

	var createdAt, updatedAt time.Time
	err := a.pool.QueryRow(ctx, q,
		p.UserID, p.Email, p.Username, p.Phone, p.BirthDate, p.Description, p.Location, p.AvatarURL,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return profileError(err)
	}

	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM public.users WHERE id = $1`

	p := &core.Profile{}
	err := a.pool.QueryRow(ctx, q, userID).Scan(
		&p.UserID, &p.Email, &p.Username, &p.Phone, &p.BirthDate,
		&p.Description, &p.Location, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdateProfile sets the non-nil fields of update. An empty string clears an
// optional column.
func (a *Adapter) UpdateProfile(ctx context.Context, userID string, update core.ProfileUpdate) error {
	q := `UPDATE public.users SET
		username    = COALESCE($2, username),
		phone       = CASE WHEN $3::text IS NULL THEN phone ELSE NULLIF($3, '') END,
		birth_date  = COALESCE($4, birth_date),
		description = CASE WHEN $5::text IS NULL THEN description ELSE NULLIF($5, '') END,
		location    = CASE WHEN $6::text IS NULL THEN location ELSE NULLIF($6, '') END,
		avatar_url  = CASE WHEN $7::text IS NULL THEN avatar_url ELSE NULLIF($7, '') END,
		updated_at  = now()
		WHERE id = $1`

	tag, err := a.pool.Exec(ctx, q, userID,
		update.Username, update.Phone, update.BirthDate, update.Description, update.Location, update.AvatarURL,
	)
	if err != nil {
		return profileError(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrProfileNotFound
	}
	return nil
}

func profileError(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	if constraint == "users_username_key" {
		return core.ErrUsernameTaken
	}
	return core.ErrUserExists
}
