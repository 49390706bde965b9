package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
)

type urlRecord struct {
	ID          int64      `db:"id"`
	ShortCode   string     `db:"short_code"`
	OriginalURL string     `db:"original_url"`
	Clicks      int64      `db:"clicks"`
	ExpiresAt   *time.Time `db:"expires_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		Clicks:      r.Clicks,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// URLRepository persists shortened URLs in PostgreSQL.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new url record. The short_code column carries a unique
// constraint, so a concurrent insert of the same code surfaces as
// database.ErrShortCodeExists rather than a raw driver error.
func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string, expiresAt *time.Time) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL, expiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves a url record by its short code.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// ExistsByShortCode reports whether a url record with the given short code exists.
func (r *URLRepository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	const op = "database.postgres.URLRepository.ExistsByShortCode"

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1)`

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, fmt.Errorf("%s: failed to check short code existence: %w", op, err)
	}

	return exists, nil
}

// IncrementClicks applies a single atomic increment to the clicks counter
// of the url record with the given id. The increment happens in SQL, not as
// an application-level read-modify-write, so concurrent increments never
// lose updates.
func (r *URLRepository) IncrementClicks(ctx context.Context, id int64) error {
	const op = "database.postgres.URLRepository.IncrementClicks"

	query := `UPDATE urls
		SET clicks = clicks + 1
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}
