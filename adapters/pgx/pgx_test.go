package pgx

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/folio/core"
)

// newTestAdapter connects to FOLIO_TEST_DATABASE_URL, skipping when unset.
func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dsn := os.Getenv("FOLIO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FOLIO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(pool)
}

func TestAdapter_Favorites(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	record := &core.FavoriteRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		BookID:    "zyTCAlFPjgYC",
		BookData:  []byte(`{"title":"The Google story","authors":["David A. Vise"]}`),
		CreatedAt: time.Now(),
	}

	if err := a.AddFavorite(ctx, record); err != nil {
		t.Fatalf("AddFavorite() error = %v", err)
	}
	dup := *record
	dup.ID = uuid.NewString()
	if err := a.AddFavorite(ctx, &dup); err != nil {
		t.Fatalf("AddFavorite() duplicate error = %v", err)
	}

	records, err := a.ListFavorites(ctx, userID)
	if err != nil {
		t.Fatalf("ListFavorites() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID {
		t.Fatalf("ListFavorites() = %+v, want the single original record", records)
	}

	if ok, err := a.IsFavorite(ctx, userID, record.BookID); err != nil || !ok {
		t.Errorf("IsFavorite() = %v, %v, want true", ok, err)
	}
	if err := a.RemoveFavorite(ctx, userID, record.BookID); err != nil {
		t.Fatalf("RemoveFavorite() error = %v", err)
	}
	if ok, _ := a.IsFavorite(ctx, userID, record.BookID); ok {
		t.Error("IsFavorite() after remove = true")
	}
}

func TestAdapter_Profiles(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	username := "u" + uuid.NewString()[:8]

	if err := a.CreateProfile(ctx, &core.Profile{UserID: userID, Email: "p@example.com", Username: username}); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	err := a.CreateProfile(ctx, &core.Profile{UserID: "test-" + uuid.NewString(), Username: username})
	if !errors.Is(err, core.ErrUsernameTaken) {
		t.Errorf("CreateProfile() with taken username error = %v, want ErrUsernameTaken", err)
	}

	location := "Lima"
	if err := a.UpdateProfile(ctx, userID, core.ProfileUpdate{Location: &location}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	p, err := a.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if p.Location != location || p.Username != username {
		t.Errorf("GetProfile() = %+v", p)
	}

	if _, err := a.GetProfile(ctx, "missing-"+uuid.NewString()); !errors.Is(err, core.ErrProfileNotFound) {
		t.Errorf("GetProfile() of missing row error = %v, want ErrProfileNotFound", err)
	}
}
