package booksapi

import (
	"strings"

	"github.com/lborres/folio/core"
)

// volumesResponse mirrors the part of GET /books/v1/volumes that folio reads.
type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title         string      `json:"title"`
	Authors       []string    `json:"authors"`
	Description   string      `json:"description"`
	ImageLinks    *imageLinks `json:"imageLinks"`
	AverageRating *float64    `json:"averageRating"`
	RatingsCount  *int        `json:"ratingsCount"`
	Language      string      `json:"language"`
	InfoLink      string      `json:"infoLink"`
}

type imageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
}

func (v volume) book() core.Book {
	info := v.VolumeInfo
	b := core.Book{
		ID:            v.ID,
		Title:         info.Title,
		Authors:       info.Authors,
		Description:   info.Description,
		AverageRating: info.AverageRating,
		RatingsCount:  info.RatingsCount,
		Language:      info.Language,
		InfoLink:      info.InfoLink,
	}
	if b.Authors == nil {
		b.Authors = []string{}
	}
	if info.ImageLinks != nil {
		thumb := info.ImageLinks.Thumbnail
		if thumb == "" {
			thumb = info.ImageLinks.SmallThumbnail
		}
		// The API still hands out plain http image links.
		b.ThumbnailURL = strings.Replace(thumb, "http://", "https://", 1)
	}
	return b
}

// Author is one distinct author name found in a result set.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
