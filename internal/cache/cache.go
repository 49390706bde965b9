// Package cache defines the contract for the redirect lookup cache.
//
// The cache stores a small projection of a url record keyed by short code,
// so that the hot redirect path avoids a database read on every hit.
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned when no entry exists for the requested short code.
var ErrCacheMiss = errors.New("cache miss")

// Entry is the ephemeral projection of a url record kept in the cache.
// OriginalURL is immutable once created, so an entry never goes stale in
// content; only the expiry view may lag (bounded by the cache TTL).
type Entry struct {
	ID          int64  `json:"id"`
	OriginalURL string `json:"original_url"`
}

// URLCache is a TTL key-value cache of redirect entries.
type URLCache interface {
	// Get retrieves the entry for the given short code.
	// Returns ErrCacheMiss if no entry is present.
	Get(ctx context.Context, shortCode string) (*Entry, error)

	// Set stores the entry for the given short code with the cache's TTL.
	Set(ctx context.Context, shortCode string, entry *Entry) error
}
