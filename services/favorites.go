package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lborres/folio/core"
)

// FavoriteReconciler keeps an optimistic favorite/not-favorite view per book
// for the signed-in user and synchronizes it with the FavoriteStore.
type FavoriteReconciler struct {
	store   core.FavoriteStore
	session core.SessionReader
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	userID  string
	epoch   uint64 // bumped whenever the view is reset for a new user
	entries map[string]*favoriteEntry

	fetches singleflight.Group
	events  *Broadcaster[core.FavoriteEvent]
}

type favoriteEntry struct {
	favorite  bool // what observers see
	confirmed bool // last value the store acknowledged
	known     bool
	pending   int
	sequence  uint64
	tail      chan struct{} // closed when the latest queued write has finished
}

func (e *favoriteEntry) status(bookID string) core.FavoriteStatus {
	return core.FavoriteStatus{
		BookID:   bookID,
		Favorite: e.favorite,
		Pending:  e.pending > 0,
		Sequence: e.sequence,
	}
}

type toggleResult struct {
	favorite bool
	err      error
}

func NewFavoriteReconciler(store core.FavoriteStore, session core.SessionReader, logger *slog.Logger) *FavoriteReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FavoriteReconciler{
		store:   store,
		session: session,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*favoriteEntry),
		events:  NewBroadcaster[core.FavoriteEvent](),
	}
}

// currentUser returns the signed-in user and drops the view when the user
// differs from the one it was built for.
func (r *FavoriteReconciler) currentUser() (userID string, epoch uint64, ok bool) {
	userID, ok = r.session.CurrentUserID()
	if !ok {
		userID = ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userID != userID {
		if len(r.entries) > 0 {
			r.logger.Debug("favorite view reset", "previous_user_id", r.userID, "user_id", userID)
		}
		r.userID = userID
		r.epoch++
		r.entries = make(map[string]*favoriteEntry)
	}
	return userID, r.epoch, ok
}

func (r *FavoriteReconciler) entryLocked(bookID string) *favoriteEntry {
	e, ok := r.entries[bookID]
	if !ok {
		e = &favoriteEntry{}
		r.entries[bookID] = e
	}
	return e
}

// publish must be called with r.mu held so events leave in the order the
// view changed.
func (r *FavoriteReconciler) publish(userID string, status core.FavoriteStatus) {
	r.events.Publish(core.FavoriteEvent{UserID: userID, Status: status})
}

// IsFavorite reports whether bookID is a favorite of the signed-in user.
// Without a session it is false. The first call per book asks the store;
// concurrent first calls share one request. Cancelling ctx stops the wait,
// not the shared request.
func (r *FavoriteReconciler) IsFavorite(ctx context.Context, bookID string) (bool, error) {
	const op = "is favorite"

	if bookID == "" {
		return false, core.NewOpError(op, core.ErrValidation, core.ErrBookIDRequired)
	}
	userID, epoch, ok := r.currentUser()
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	if e, found := r.entries[bookID]; found && e.known {
		favorite := e.favorite
		r.mu.Unlock()
		return favorite, nil
	}
	r.mu.Unlock()

	// The lookup is shared, so it must not die with the caller that started it.
	lookup := context.WithoutCancel(ctx)
	ch := r.fetches.DoChan(userID+"/"+bookID, func() (any, error) {
		return r.fetch(lookup, userID, epoch, bookID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, core.NewOpError(op, core.ErrRemoteRead, res.Err)
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (r *FavoriteReconciler) fetch(ctx context.Context, userID string, epoch uint64, bookID string) (bool, error) {
	r.mu.Lock()
	var seq uint64
	if e, ok := r.entries[bookID]; ok {
		seq = e.sequence
	}
	r.mu.Unlock()

	found, err := r.store.IsFavorite(ctx, userID, bookID)
	if err != nil {
		r.logger.Warn("favorite lookup failed", "user_id", userID, "book_id", bookID, "error", err)
		return false, err
	}

	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		return found, nil
	}
	e := r.entryLocked(bookID)
	if e.sequence != seq || e.known {
		// A toggle settled the entry while the lookup was out; it wins.
		favorite := e.favorite
		r.mu.Unlock()
		return favorite, nil
	}
	e.favorite, e.confirmed, e.known = found, found, true
	r.publish(userID, e.status(bookID))
	r.mu.Unlock()

	return found, nil
}

// ToggleFavorite flips the favorite status of book. The view changes at
// once; the store write follows, after any earlier write for the same book.
// If the write fails and no later toggle was issued, the view returns to the
// last value the store acknowledged and a RemoteWriteError is returned.
//
// Cancelling ctx stops the wait, not the write.
func (r *FavoriteReconciler) ToggleFavorite(ctx context.Context, book core.Book) (bool, error) {
	const op = "toggle favorite"

	if book.ID == "" {
		return false, core.NewOpError(op, core.ErrValidation, core.ErrBookIDRequired)
	}
	if _, _, ok := r.currentUser(); !ok {
		return false, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}
	data, err := core.EncodeBookData(book)
	if err != nil {
		return false, core.NewOpError(op, core.ErrValidation, err)
	}

	if _, err := r.IsFavorite(ctx, book.ID); err != nil {
		return false, err
	}

	userID, epoch, ok := r.currentUser()
	if !ok {
		return false, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}

	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		return false, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}
	e := r.entryLocked(book.ID)
	want := !e.favorite
	e.favorite = want
	e.known = true
	e.sequence++
	e.pending++
	seq := e.sequence
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	r.publish(userID, e.status(book.ID))
	r.mu.Unlock()

	r.logger.Debug("favorite toggled", "user_id", userID, "book_id", book.ID, "favorite", want, "sequence", seq)

	result := make(chan toggleResult, 1)
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		err := r.write(context.WithoutCancel(ctx), userID, book.ID, data, want)
		result <- toggleResult{
			favorite: r.complete(userID, epoch, book.ID, seq, want, err),
			err:      err,
		}
	}()

	select {
	case res := <-result:
		if res.err != nil {
			return res.favorite, core.NewOpError(op, core.ErrRemoteWrite, res.err)
		}
		return res.favorite, nil
	case <-ctx.Done():
		return want, ctx.Err()
	}
}

func (r *FavoriteReconciler) write(ctx context.Context, userID, bookID string, data []byte, favorite bool) error {
	if !favorite {
		return r.store.RemoveFavorite(ctx, userID, bookID)
	}
	return r.store.AddFavorite(ctx, &core.FavoriteRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		BookID:    bookID,
		BookData:  data,
		CreatedAt: r.now(),
	})
}

// complete records the outcome of write seq and returns the resulting view.
// Only the latest write for a book may move the view.
func (r *FavoriteReconciler) complete(userID string, epoch uint64, bookID string, seq uint64, want bool, err error) bool {
	r.mu.Lock()
	e, ok := r.entries[bookID]
	if r.epoch != epoch || !ok {
		r.mu.Unlock()
		if err != nil {
			return !want
		}
		return want
	}

	e.pending--
	if err == nil {
		e.confirmed = want
	}
	if seq == e.sequence && err != nil {
		e.favorite = e.confirmed
	}
	favorite := e.favorite
	latest := seq == e.sequence
	r.publish(userID, e.status(bookID))
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("favorite write failed",
			"user_id", userID, "book_id", bookID, "favorite", want,
			"sequence", seq, "latest", latest, "error", err)
	}
	return favorite
}

// ListFavorites returns the signed-in user's favorites. A record whose book
// data cannot be read is returned with a placeholder book and Corrupt set.
func (r *FavoriteReconciler) ListFavorites(ctx context.Context) ([]core.FavoriteEntry, error) {
	const op = "list favorites"

	userID, _, ok := r.currentUser()
	if !ok {
		return nil, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}

	records, err := r.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, core.NewOpError(op, core.ErrRemoteRead, err)
	}

	entries := make([]core.FavoriteEntry, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		entry := core.FavoriteEntry{Record: record}
		book, err := core.DecodeBookData(record.BookID, record.BookData)
		if err != nil {
			r.logger.Warn("favorite has unreadable book data", "user_id", userID, "book_id", record.BookID, "error", err)
			book = core.PlaceholderBook(record.BookID)
			entry.Corrupt = true
		}
		entry.Book = book
		entries = append(entries, entry)
	}
	return entries, nil
}

// Status returns the view of bookID. A book never looked at has the zero status.
func (r *FavoriteReconciler) Status(bookID string) core.FavoriteStatus {
	r.currentUser()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[bookID]; ok {
		return e.status(bookID)
	}
	return core.FavoriteStatus{BookID: bookID}
}

// Refresh forgets every settled entry so the next IsFavorite asks the store.
func (r *FavoriteReconciler) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for bookID, e := range r.entries {
		if e.pending == 0 {
			delete(r.entries, bookID)
		}
	}
}

func (r *FavoriteReconciler) Subscribe() (<-chan core.FavoriteEvent, func()) {
	return r.events.Subscribe()
}

func (r *FavoriteReconciler) Close() {
	r.events.Close()
}
