package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lborres/folio/core"
)

var favCmd = &cobra.Command{
	Use:     "fav",
	Aliases: []string{"favorites"},
	Short:   "Manage the signed-in user's favorites",
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runFavList(ctx, a, cmd.OutOrStdout())
		})
	},
}

var favCheckCmd = &cobra.Command{
	Use:   "check <book-id>",
	Short: "Report whether a book is a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runFavCheck(ctx, a, cmd.OutOrStdout(), args[0])
		})
	},
}

var favToggleFlags struct {
	title   string
	authors []string
}

var favToggleCmd = &cobra.Command{
	Use:   "toggle <book-id>",
	Short: "Add a book to favorites, or remove it if it is one",
	Long: `Toggle a favorite. The book is looked up in the catalog so the favorite
keeps its title and authors; --title and --author skip the lookup.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			book := a.lookupBook(ctx, args[0], favToggleFlags.title, favToggleFlags.authors)
			return runFavToggle(ctx, a, cmd.OutOrStdout(), book)
		})
	},
}

func init() {
	favToggleCmd.Flags().StringVar(&favToggleFlags.title, "title", "", "Book title")
	favToggleCmd.Flags().StringSliceVar(&favToggleFlags.authors, "author", nil, "Book author (repeatable)")

	favCmd.AddCommand(favListCmd, favCheckCmd, favToggleCmd)
	rootCmd.AddCommand(favCmd)
}

// lookupBook returns the book to snapshot for a toggle. With a title the
// flags are used as given; otherwise the catalog is asked, falling back to a
// bare id when the lookup fails.
func (a *app) lookupBook(ctx context.Context, id, title string, authors []string) core.Book {
	if title != "" {
		return core.Book{ID: id, Title: title, Authors: authors}
	}
	book, err := a.books.Get(ctx, id)
	if err != nil {
		a.logger.Warn("book lookup failed; saving favorite without details", "book_id", id, "error", err)
		return core.Book{ID: id, Authors: authors}
	}
	return book
}

func runFavList(ctx context.Context, a *app, w io.Writer) error {
	entries, err := a.folio.Favorites.ListFavorites(ctx)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, entries)
	}
	fmt.Fprintln(w, formatFavoritesHuman(entries))
	return nil
}

func runFavCheck(ctx context.Context, a *app, w io.Writer, bookID string) error {
	favorite, err := a.folio.Favorites.IsFavorite(ctx, bookID)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, a.folio.Favorites.Status(bookID))
	}
	fmt.Fprintln(w, formatFavoriteHuman(bookID, favorite))
	return nil
}

func runFavToggle(ctx context.Context, a *app, w io.Writer, book core.Book) error {
	favorite, err := a.folio.Favorites.ToggleFavorite(ctx, book)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, a.folio.Favorites.Status(book.ID))
	}
	fmt.Fprintln(w, formatFavoriteHuman(book.ID, favorite))
	return nil
}
