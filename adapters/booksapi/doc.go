// Package booksapi provides an HTTP client for the Google Books volumes API.
//
// The client implements core.BookSearcher. A search combines the free-text
// query with an optional inauthor: qualifier and language restriction:
//
//	client, err := booksapi.NewClient(booksapi.Options{})
//	books, err := client.Search(ctx, core.SearchQuery{Query: "dune", Author: "Herbert"})
//
// Requests carry a 5 second timeout, an Accept: application/json header and
// a folio User-Agent. No retries or caching happen here; callers decide.
package booksapi
