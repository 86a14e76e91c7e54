package core

import "time"

// Session represents the authenticated identity of the current user
//
// There is at most one current Session; nil means signed out.
type Session struct {
	UserID       string          `json:"userId"`
	Email        string          `json:"email"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	Profile      ProfileMetadata `json:"profile"`
}

// ProfileMetadata is the mutable profile attached to a Session.
type ProfileMetadata struct {
	Username    string     `json:"username,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
}

// Profile is a row of the remote users table.
//
// This is the "profile" - what the user says about themselves
type Profile struct {
	UserID      string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Phone       string     `json:"phone,omitempty"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Metadata projects the row onto the fields carried by a Session.
func (p *Profile) Metadata() ProfileMetadata {
	return ProfileMetadata{
		Username:    p.Username,
		Phone:       p.Phone,
		BirthDate:   p.BirthDate,
		Description: p.Description,
		Location:    p.Location,
		AvatarURL:   p.AvatarURL,
	}
}

// ProfileUpdate is a partial update of a profile row. Nil fields are left as they are.
type ProfileUpdate struct {
	Username    *string    `json:"username,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	AvatarURL   *string    `json:"avatarUrl,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.Phone == nil && u.BirthDate == nil &&
		u.Description == nil && u.Location == nil && u.AvatarURL == nil
}

// Apply writes the set fields of u onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.BirthDate != nil {
		d := *u.BirthDate
		p.BirthDate = &d
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Location != nil {
		p.Location = *u.Location
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
}

// AuthUser is the identity record held by the auth authority.
type AuthUser struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Metadata  ProfileMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// UserAttributes are the fields an authenticated user may change on the authority.
type UserAttributes struct {
	Email    *string          `json:"email,omitempty"`
	Password *string          `json:"-"` // Never expose in JSON
	Metadata *ProfileMetadata `json:"metadata,omitempty"`
}

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// SignUpResponse is what the authority returns for a registration.
// Session is nil when the authority requires confirmation before sign-in.
type SignUpResponse struct {
	User    *AuthUser
	Session *Session
}

// SignUpResult contains the newly created user and, when issued, their session
type SignUpResult struct {
	User    *AuthUser `json:"user"`
	Session *Session  `json:"session,omitempty"`

	// ProfileWarning is set when authentication succeeded but the profile
	// row could not be created. Creating it again later is safe.
	ProfileWarning error `json:"-"`
}

// Book is the display shape of a catalog entry.
type Book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	ThumbnailURL  string   `json:"thumbnailUrl,omitempty"`
	AverageRating *float64 `json:"averageRating,omitempty"`
	RatingsCount  *int     `json:"ratingsCount,omitempty"`
	Language      string   `json:"language,omitempty"`
	InfoLink      string   `json:"infoLink,omitempty"`
}

// SearchQuery configures a catalog search.
type SearchQuery struct {
	Query      string
	Author     string
	Language   string
	MaxResults int
}

// FavoriteRecord is one (user, book) favorite row.
type FavoriteRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BookID    string    `json:"bookId"`
	BookData  []byte    `json:"bookData"` // JSON BookSnapshot captured at favorite time
	CreatedAt time.Time `json:"createdAt"`
}

// FavoriteEntry is a FavoriteRecord rehydrated for display.
type FavoriteEntry struct {
	Record  *FavoriteRecord `json:"record"`
	Book    Book            `json:"book"`
	Corrupt bool            `json:"corrupt,omitempty"`
}

// FavoriteStatus is the reconciler's view of one book.
//
// Pending is true while a toggle for the book has not completed; Sequence is
// the number of the latest toggle issued for it.
type FavoriteStatus struct {
	BookID   string `json:"bookId"`
	Favorite bool   `json:"favorite"`
	Pending  bool   `json:"pending"`
	Sequence uint64 `json:"sequence"`
}
