package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shortlyhq/shortly/internal/cache"
	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/metrics"
	"github.com/shortlyhq/shortly/internal/models"
	"github.com/shortlyhq/shortly/internal/queue"
)

// shortCodeAlphabet restricts generated codes to URL-safe alphanumerics.
const shortCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	// DefaultShortCodeLength is used when no length is configured.
	DefaultShortCodeLength = 6
	// maxGenerateAttempts bounds the generate-and-check loop. At the default
	// length the alphabet gives 62^6 combinations, so hitting the bound
	// means something is badly wrong, not bad luck.
	maxGenerateAttempts = 10

	maxOriginalURLLength = 2048
	minShortCodeLength   = 4
	maxShortCodeLength   = 12
)

var (
	// ErrMaxRetriesExceeded is returned when the maximum number of attempts
	// for generating a unique short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrInvalidOriginalURL is returned when the original URL is not an
	// absolute http or https URL of acceptable length.
	ErrInvalidOriginalURL = errors.New("invalid original url")
	// ErrInvalidCustomCode is returned when a custom short code violates the
	// length or charset constraints.
	ErrInvalidCustomCode = errors.New("invalid custom code")
	// ErrInvalidExpiry is returned when the expiration timestamp is not
	// strictly in the future.
	ErrInvalidExpiry = errors.New("expiration must be in the future")
	// ErrLinkExpired is returned when a short code resolves to a record
	// whose expiration timestamp has passed. Distinct from not-found so the
	// transport layer can answer 410 rather than 404.
	ErrLinkExpired = errors.New("link expired")
)

var shortCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// URLRepository defines the interface for working with URLs at the business logic layer.
type URLRepository interface {
	// Create inserts a new shortened URL into the repository. The insert is
	// guarded by a uniqueness constraint on the short code; a race on the
	// same code surfaces as database.ErrShortCodeExists.
	Create(ctx context.Context, shortCode, originalURL string, expiresAt *time.Time) (*models.URL, error)

	// GetByShortCode retrieves a URL by its short code.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// ExistsByShortCode reports whether a URL with the given short code exists.
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)

	// IncrementClicks atomically increments the click counter of the URL
	// with the given id.
	IncrementClicks(ctx context.Context, id int64) error
}

// URLService implements the shortening, redirect resolution and stats
// operations on top of the repository, the redirect cache and the task
// queue.
type URLService struct {
	repo            URLRepository
	cache           cache.URLCache
	tasks           queue.TaskQueue
	metrics         metrics.Recorder
	logger          *slog.Logger
	shortCodeLength int
}

func NewURLService(
	repo URLRepository,
	urlCache cache.URLCache,
	tasks queue.TaskQueue,
	rec metrics.Recorder,
	logger *slog.Logger,
	shortCodeLength int,
) *URLService {
	if shortCodeLength < minShortCodeLength || shortCodeLength > maxShortCodeLength {
		shortCodeLength = DefaultShortCodeLength
	}

	return &URLService{
		repo:            repo,
		cache:           urlCache,
		tasks:           tasks,
		metrics:         rec,
		logger:          logger,
		shortCodeLength: shortCodeLength,
	}
}

// ShortenURL validates the input, picks or generates a short code and
// persists the mapping. A newly created URL is not pre-cached: the cache is
// populated lazily by the redirect path.
func (s *URLService) ShortenURL(ctx context.Context, originalURL, customCode string, expiresAt *time.Time) (*models.URL, error) {
	const op = "service.URLService.ShortenURL"

	if err := validateOriginalURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidExpiry)
	}

	s.metrics.Counter("url_shorten_requests", map[string]any{
		"has_custom_code": customCode != "",
	})

	shortCode := customCode
	if shortCode != "" {
		if !validShortCode(shortCode) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCustomCode)
		}

		exists, err := s.repo.ExistsByShortCode(ctx, shortCode)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check custom code: %w", op, err)
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}
	} else {
		var err error
		shortCode, err = s.generateShortCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	// The existence pre-check above and this insert are not atomic. The
	// unique constraint on short_code is the real guard; a lost race comes
	// back as database.ErrShortCodeExists.
	url, err := s.repo.Create(ctx, shortCode, originalURL, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
	}

	s.logger.Info(
		"url created",
		slog.Group(op, slog.Int64("url_id", url.ID), slog.String("short_code", url.ShortCode)),
	)

	return url, nil
}

// generateShortCode produces a random alphanumeric code that is not present
// in the store. The generate-and-check loop is bounded; exhausting it
// returns ErrMaxRetriesExceeded.
func (s *URLService) generateShortCode(ctx context.Context) (string, error) {
	const op = "service.URLService.generateShortCode"

	for i := 0; i < maxGenerateAttempts; i++ {
		code, err := gonanoid.Generate(shortCodeAlphabet, s.shortCodeLength)
		if err != nil {
			return "", fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		exists, err := s.repo.ExistsByShortCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check short code existence: %w", op, err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode resolves a short code to its destination URL for a
// redirect, using a cache-aside lookup.
//
// On a cache hit the stored expiration is deliberately not re-checked: an
// expired link that was cached before expiring keeps redirecting until its
// cache entry lapses, at most the cache TTL. That bounded staleness buys a
// redirect path with zero database reads on hits.
//
// Every successful resolution enqueues a click increment and returns
// without waiting for it to be applied.
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	const op = "service.URLService.ResolveShortCode"

	s.metrics.Counter("url_redirect_attempts", map[string]any{"short_code": shortCode})

	entry, err := s.cache.Get(ctx, shortCode)
	if err == nil {
		s.metrics.Counter("url_redirect_cache_hits", map[string]any{"short_code": shortCode})

		if entry.ID != 0 {
			s.enqueueIncrement(ctx, entry.ID)
		}

		return entry.OriginalURL, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// A degraded cache must not take down redirects, fall through to
		// the store.
		s.logger.Warn("cache lookup failed", slog.Group(op, slog.Any("err", err)))
	}

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if url.Expired(time.Now()) {
		s.metrics.Counter("url_redirect_expired_attempts", map[string]any{"short_code": shortCode})

		return "", fmt.Errorf("%s: %w", op, ErrLinkExpired)
	}

	if err := s.cache.Set(ctx, shortCode, &cache.Entry{ID: url.ID, OriginalURL: url.OriginalURL}); err != nil {
		s.logger.Warn("cache population failed", slog.Group(op, slog.Any("err", err)))
	}

	s.enqueueIncrement(ctx, url.ID)

	s.metrics.Counter("url_redirect_success", map[string]any{"short_code": shortCode})

	return url.OriginalURL, nil
}

// enqueueIncrement dispatches a click increment without blocking on its
// execution. A failed enqueue loses one click, never the redirect.
func (s *URLService) enqueueIncrement(ctx context.Context, id int64) {
	const op = "service.URLService.enqueueIncrement"

	if err := s.tasks.Enqueue(ctx, queue.IncrementTask{URLID: id}); err != nil {
		s.logger.Warn(
			"failed to enqueue click increment",
			slog.Group(op, slog.Int64("url_id", id), slog.Any("err", err)),
		)
	}
}

// GetURLStats retrieves the record behind a short code for reporting.
// Expired records are still served here; only redirects refuse them.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}

func validateOriginalURL(rawURL string) error {
	if rawURL == "" || len(rawURL) > maxOriginalURLLength {
		return ErrInvalidOriginalURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidOriginalURL
	}

	return nil
}

func validShortCode(code string) bool {
	return len(code) >= minShortCodeLength &&
		len(code) <= maxShortCodeLength &&
		shortCodeRegexp.MatchString(code)
}
