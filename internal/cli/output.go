package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lborres/folio/adapters/booksapi"
	"github.com/lborres/folio/core"
)

const dateLayout = "2006-01-02"

// writeJSON writes v indented, followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// statusView is the JSON shape of whoami.
type statusView struct {
	State       string        `json:"state"`
	SignedIn    bool          `json:"signedIn"`
	Provisional bool          `json:"provisional"`
	Session     *core.Session `json:"session,omitempty"`
}

func newStatusView(status core.SessionStatus, s *core.Session) statusView {
	return statusView{
		State:       status.State.String(),
		SignedIn:    status.SignedIn(),
		Provisional: status.Provisional,
		Session:     s,
	}
}

// formatStatusHuman formats the session state for a terminal
func formatStatusHuman(status core.SessionStatus, s *core.Session) string {
	if !status.SignedIn() || s == nil {
		return "Not signed in."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Signed in as %s", s.Email)
	if s.Profile.Username != "" {
		fmt.Fprintf(&b, " (%s)", s.Profile.Username)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "User ID:  %s\n", s.UserID)
	if !s.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Expires:  %s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	if status.Provisional {
		b.WriteString("Offline:  using the cached session\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatProfileHuman formats a profile row
func formatProfileHuman(p *core.Profile) string {
	birth := ""
	if p.BirthDate != nil {
		birth = p.BirthDate.Format(dateLayout)
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Username", p.Username},
		{"Email", p.Email},
		{"Phone", p.Phone},
		{"Birth date", birth},
		{"Location", p.Location},
		{"Avatar", p.AvatarURL},
		{"About", p.Description},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// formatBooksHuman formats a search result, one book per line
func formatBooksHuman(books []core.Book) string {
	if len(books) == 0 {
		return "No books found."
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHORS")
	for _, book := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", book.ID, book.Title, authorsLabel(book.Authors))
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// formatAuthorsHuman formats the distinct authors of a search result
func formatAuthorsHuman(authors []booksapi.Author) string {
	if len(authors) == 0 {
		return "No authors found."
	}
	lines := make([]string, 0, len(authors))
	for _, a := range authors {
		lines = append(lines, fmt.Sprintf("%s. %s", a.ID, a.Name))
	}
	return strings.Join(lines, "\n")
}

// formatFavoritesHuman formats the favorites list, newest first
func formatFavoritesHuman(entries []core.FavoriteEntry) string {
	if len(entries) == 0 {
		return "No favorites yet."
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHORS\tADDED")
	for _, e := range entries {
		added := ""
		if e.Record != nil && !e.Record.CreatedAt.IsZero() {
			added = e.Record.CreatedAt.Local().Format(dateLayout)
		}
		title := e.Book.Title
		if e.Corrupt {
			title += " (unreadable)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Book.ID, title, authorsLabel(e.Book.Authors), added)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// formatFavoriteHuman formats the answer of fav check and fav toggle
func formatFavoriteHuman(bookID string, favorite bool) string {
	if favorite {
		return fmt.Sprintf("%s is a favorite.", bookID)
	}
	return fmt.Sprintf("%s is not a favorite.", bookID)
}

func authorsLabel(authors []string) string {
	if len(authors) == 0 {
		return "-"
	}
	return strings.Join(authors, ", ")
}
