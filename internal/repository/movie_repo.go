package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
)

// MovieRepository caches movie details fetched from the backend
type MovieRepository struct {
	db *DB
}

// NewMovieRepository creates a new movie repository
func NewMovieRepository(db *DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// Put stores or refreshes a movie
func (r *MovieRepository) Put(movie *domain.Movie, fetchedAt time.Time) error {
	payload, err := json.Marshal(movie)
	if err != nil {
		return fmt.Errorf("failed to encode movie: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO movies (id, title, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, movie.ID, movie.Title, string(payload), fetchedAt.UnixMilli())

	return err
}

// Get returns the cached movie, or nil when it is missing or older than
// maxAge. A zero maxAge accepts any age.
func (r *MovieRepository) Get(id int64, maxAge time.Duration) (*domain.CachedMovie, error) {
	var payload string
	var fetchedAt int64

	err := r.db.QueryRow(`
		SELECT payload, fetched_at FROM movies WHERE id = ?
	`, id).Scan(&payload, &fetchedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cached := &domain.CachedMovie{FetchedAt: time.UnixMilli(fetchedAt)}
	if maxAge > 0 && time.Since(cached.FetchedAt) > maxAge {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(payload), &cached.Movie); err != nil {
		return nil, fmt.Errorf("failed to decode movie %d: %w", id, err)
	}

	return cached, nil
}

// Delete removes a movie from the cache
func (r *MovieRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM movies WHERE id = ?`, id)
	return err
}

// Purge drops entries fetched before cutoff and returns how many were removed
func (r *MovieRepository) Purge(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM movies WHERE fetched_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of cached movies
func (r *MovieRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&count)
	return count, err
}
