package core

import (
	"encoding/json"
	"fmt"
)

// PlaceholderTitle is shown for a favorite whose snapshot could not be read.
const PlaceholderTitle = "Unknown title"

// BookSnapshot is the denormalized copy of a book stored with a favorite,
// since the catalog entry may change or disappear.
type BookSnapshot struct {
	Title       string      `json:"title"`
	Authors     []string    `json:"authors"`
	Description string      `json:"description"`
	ImageLinks  *ImageLinks `json:"imageLinks,omitempty"`
}

// ImageLinks mirrors the catalog's image link block.
type ImageLinks struct {
	Thumbnail string `json:"thumbnail"`
}

// NewBookSnapshot captures the fields of b that favorites keep.
func NewBookSnapshot(b Book) BookSnapshot {
	snap := BookSnapshot{
		Title:       b.Title,
		Authors:     append([]string(nil), b.Authors...),
		Description: b.Description,
	}
	if b.ThumbnailURL != "" {
		snap.ImageLinks = &ImageLinks{Thumbnail: b.ThumbnailURL}
	}
	return snap
}

// EncodeBookData serializes the snapshot of b.
func EncodeBookData(b Book) ([]byte, error) {
	data, err := json.Marshal(NewBookSnapshot(b))
	if err != nil {
		return nil, fmt.Errorf("encode book data: %w", err)
	}
	return data, nil
}

// DecodeBookData rebuilds the display shape of bookID from stored snapshot data.
func DecodeBookData(bookID string, data []byte) (Book, error) {
	if len(data) == 0 {
		return Book{}, fmt.Errorf("decode book %s: empty data: %w", bookID, ErrCorruptData)
	}
	var snap *BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Book{}, fmt.Errorf("decode book %s: %v: %w", bookID, err, ErrCorruptData)
	}
	if snap == nil {
		return Book{}, fmt.Errorf("decode book %s: null snapshot: %w", bookID, ErrCorruptData)
	}
	book := Book{
		ID:          bookID,
		Title:       snap.Title,
		Authors:     snap.Authors,
		Description: snap.Description,
	}
	if snap.ImageLinks != nil {
		book.ThumbnailURL = snap.ImageLinks.Thumbnail
	}
	if book.Authors == nil {
		book.Authors = []string{}
	}
	return book, nil
}

// PlaceholderBook is the display shape used when a snapshot is unreadable.
func PlaceholderBook(bookID string) Book {
	return Book{
		ID:      bookID,
		Title:   PlaceholderTitle,
		Authors: []string{},
	}
}
