package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lborres/folio/adapters/booksapi"
	"github.com/lborres/folio/core"
)

var searchFlags struct {
	author   string
	language string
	max      int
	authors  bool
}

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search the book catalog",
	Example: `  folio search dune
  folio search --author "Ursula K. Le Guin" --lang en
  folio search tolkien --authors`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := core.SearchQuery{
			Query:    strings.Join(args, " "),
			Author:   searchFlags.author,
			Language: searchFlags.language,
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			query.MaxResults = a.maxResults(searchFlags.max)
			return runSearch(ctx, a, cmd.OutOrStdout(), query, searchFlags.authors)
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.author, "author", "", "Restrict to an author")
	searchCmd.Flags().StringVar(&searchFlags.language, "lang", "", "Restrict to a language (ISO 639-1)")
	searchCmd.Flags().IntVar(&searchFlags.max, "max", 0, "Maximum results (1-40)")
	searchCmd.Flags().BoolVar(&searchFlags.authors, "authors", false, "List the distinct authors of the result instead of the books")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, a *app, w io.Writer, query core.SearchQuery, authorsOnly bool) error {
	books, err := a.folio.Search(ctx, query)
	if err != nil {
		return err
	}

	if authorsOnly {
		authors := booksapi.Authors(books)
		if IsJSONOutput() {
			return writeJSON(w, authors)
		}
		fmt.Fprintln(w, formatAuthorsHuman(authors))
		return nil
	}

	if IsJSONOutput() {
		return writeJSON(w, books)
	}
	fmt.Fprintln(w, formatBooksHuman(books))
	return nil
}
