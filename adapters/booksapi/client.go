package booksapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lborres/folio/core"
)

var _ core.BookSearcher = (*Client)(nil)

var ErrQueryRequired = errors.New("search query is required")

const (
	DefaultBaseURL    = "https://www.googleapis.com"
	DefaultMaxResults = 20
	maxResultsLimit   = 40 // the API rejects anything larger

	defaultUserAgent = "folio/0.1"
	requestTimeout   = 5 * time.Second
	volumesPath      = "/books/v1/volumes"
)

type Options struct {
	BaseURL string
	APIKey  string

	// HTTPClient replaces the default client with a 5 second timeout.
	HTTPClient *http.Client
}

// Client talks to the Google Books API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	apiKey    string
	userAgent string
}

func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		apiKey:    strings.TrimSpace(opts.APIKey),
		userAgent: defaultUserAgent,
	}, nil
}

// Search runs a volumes query. A response without items is an empty result.
func (c *Client) Search(ctx context.Context, query core.SearchQuery) ([]core.Book, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	q := strings.TrimSpace(query.Query)
	if author := strings.TrimSpace(query.Author); author != "" {
		q = strings.TrimSpace(q + " inauthor:" + author)
	}
	if q == "" {
		return nil, ErrQueryRequired
	}

	values := url.Values{}
	values.Set("q", q)
	if lang := strings.TrimSpace(query.Language); lang != "" {
		values.Set("langRestrict", lang)
	}
	values.Set("maxResults", strconv.Itoa(clampResults(query.MaxResults)))
	if c.apiKey != "" {
		values.Set("key", c.apiKey)
	}

	rel := &url.URL{Path: volumesPath, RawQuery: values.Encode()}
	var payload volumesResponse
	if err := c.doURL(ctx, http.MethodGet, rel, &payload); err != nil {
		return nil, err
	}

	books := make([]core.Book, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ID == "" {
			continue
		}
		books = append(books, item.book())
	}
	return books, nil
}

// Get fetches a single volume by id.
func (c *Client) Get(ctx context.Context, id string) (core.Book, error) {
	if c == nil {
		return core.Book{}, fmt.Errorf("client is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Book{}, core.ErrBookIDRequired
	}

	values := url.Values{}
	if c.apiKey != "" {
		values.Set("key", c.apiKey)
	}
	rel := &url.URL{Path: volumesPath + "/" + url.PathEscape(id), RawQuery: values.Encode()}
	var payload volume
	if err := c.doURL(ctx, http.MethodGet, rel, &payload); err != nil {
		return core.Book{}, err
	}
	if payload.ID == "" {
		payload.ID = id
	}
	return payload.book(), nil
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > maxResultsLimit:
		return maxResultsLimit
	default:
		return n
	}
}

// Authors returns the distinct author names of books in first-seen order,
// numbered from 1.
func Authors(books []core.Book) []Author {
	seen := make(map[string]struct{})
	var authors []Author
	for _, b := range books {
		for _, name := range b.Authors {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			authors = append(authors, Author{ID: strconv.Itoa(len(authors) + 1), Name: name})
		}
	}
	return authors
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
