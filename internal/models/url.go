package models

import "time"

// URL represents a shortened URL and its associated metadata.
type URL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// Clicks tracks the number of times the shortened URL has been followed.
	Clicks int64
	// ExpiresAt is the optional expiration timestamp. A nil value means the
	// URL never expires.
	ExpiresAt *time.Time
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the shortened URL was last updated.
	UpdatedAt time.Time
}

// Expired reports whether the URL has an expiration timestamp strictly in
// the past relative to now.
func (u *URL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}
